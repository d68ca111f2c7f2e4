/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

package config

import (
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/afero"
	"github.com/spf13/viper"

	libatm "github.com/sabouaram/netsock/atomic"
)

// Loader unmarshals a Config from file (YAML/JSON/TOML/env, whatever viper
// supports) and can watch it for changes, invoking onChange with the newly
// decoded Config. onChange is expected to push the new Options into a
// running Stack's SetDefaults / mutable-timeout setters — never into an
// in-flight wait. The current snapshot lives in an atomic value so the
// watch goroutine's reload never contends with a reader.
type Loader struct {
	v   *viper.Viper
	fs  afero.Fs
	cur libatm.Value[Config]
}

// NewLoader builds a Loader rooted at path, using fs for file access (an
// afero.NewMemMapFs() in tests, afero.NewOsFs() in production).
func NewLoader(fs afero.Fs, path string) (*Loader, error) {
	v := viper.New()
	v.SetFs(fs)
	v.SetConfigFile(path)

	l := &Loader{
		v:   v,
		fs:  fs,
		cur: libatm.NewValueDefault[Config](DefaultConfig(), DefaultConfig()),
	}
	if err := l.reload(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Loader) reload() error {
	if err := l.v.ReadInConfig(); err != nil {
		return err
	}

	cfg := DefaultConfig()
	if err := l.v.Unmarshal(&cfg); err != nil {
		return err
	}

	l.cur.Store(cfg)
	return nil
}

// Current returns the most recently loaded configuration.
func (l *Loader) Current() Config {
	return l.cur.Load()
}

// Watch starts an fsnotify watch on the loader's config file; each write
// event triggers a reload and, on success, onChange(new Config). Watch
// returns a stop function; it never blocks the caller.
func (l *Loader) Watch(onChange func(Config)) (stop func() error, err error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if err = w.Add(l.v.ConfigFileUsed()); err != nil {
		_ = w.Close()
		return nil, err
	}

	done := make(chan struct{})
	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if err := l.reload(); err == nil && onChange != nil {
					onChange(l.Current())
				}
			case _, ok := <-w.Errors:
				if !ok {
					return
				}
			case <-done:
				return
			}
		}
	}()

	return func() error {
		close(done)
		return w.Close()
	}, nil
}
