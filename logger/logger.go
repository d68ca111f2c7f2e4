/*
 * MIT License
 *
 * Copyright (c) 2019 Nicolas JUHEL
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
 */

package logger

import (
	"sync"

	"github.com/sirupsen/logrus"
)

type logger struct {
	mu  sync.RWMutex
	l   *logrus.Logger
	f   logrus.Fields
	lvl Level
}

func (g *logger) SetLevel(lvl Level) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lvl = lvl
	g.l.SetLevel(lvl.Logrus())
}

func (g *logger) GetLevel() Level {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.lvl
}

func (g *logger) WithFields(fields logrus.Fields) Logger {
	g.mu.RLock()
	defer g.mu.RUnlock()

	n := logrus.Fields{}
	for k, v := range g.f {
		n[k] = v
	}
	for k, v := range fields {
		n[k] = v
	}

	return &logger{l: g.l, f: n, lvl: g.lvl}
}

func (g *logger) entry(fields logrus.Fields) *logrus.Entry {
	g.mu.RLock()
	defer g.mu.RUnlock()

	n := logrus.Fields{}
	for k, v := range g.f {
		n[k] = v
	}
	for k, v := range fields {
		n[k] = v
	}

	return g.l.WithFields(n)
}

func (g *logger) Debug(msg string, fields logrus.Fields) {
	g.entry(fields).Debug(msg)
}

func (g *logger) Info(msg string, fields logrus.Fields) {
	g.entry(fields).Info(msg)
}

func (g *logger) Warn(msg string, fields logrus.Fields) {
	g.entry(fields).Warn(msg)
}

func (g *logger) Error(msg string, fields logrus.Fields) {
	g.entry(fields).Error(msg)
}
