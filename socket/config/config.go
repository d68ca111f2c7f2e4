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

// Package config holds the BSD-shaped address structures and the per-socket
// option set the engine is built from, along with a viper/fsnotify-backed
// loader so deployments can supply and hot-reload timeout and buffer sizing
// without restarting the process.
package config

import "time"

// Addr mirrors a BSD sockaddr_in / sockaddr_in6: family, host-order port,
// and a raw address. IP is nil for the wildcard address.
type Addr struct {
	Family  int    `json:"family" yaml:"family" toml:"family" mapstructure:"family"`
	IP      []byte `json:"ip" yaml:"ip" toml:"ip" mapstructure:"ip"`
	Port    uint16 `json:"port" yaml:"port" toml:"port" mapstructure:"port"`
	IfIndex int    `json:"if_index" yaml:"if_index" toml:"if_index" mapstructure:"if_index"`
}

// IsWildcard reports whether the address carries no concrete IP.
func (a Addr) IsWildcard() bool {
	if len(a.IP) == 0 {
		return true
	}
	for _, b := range a.IP {
		if b != 0 {
			return false
		}
	}
	return true
}

// Timeout is a duration with an "infinite" sentinel, matching the spec's
// wait-primitive timeouts (milliseconds or INFINITE).
type Timeout struct {
	Infinite bool          `json:"infinite" yaml:"infinite" toml:"infinite" mapstructure:"infinite"`
	Duration time.Duration `json:"duration" yaml:"duration" toml:"duration" mapstructure:"duration"`
}

// InfiniteTimeout never elapses.
var InfiniteTimeout = Timeout{Infinite: true}

// TimeoutMS builds a finite timeout from a millisecond count.
func TimeoutMS(ms int64) Timeout {
	if ms < 0 {
		return InfiniteTimeout
	}
	return Timeout{Duration: time.Duration(ms) * time.Millisecond}
}

// Options configures a single socket's buffering, backlog and timeout
// behavior. Every field has a process-wide default sourced from Defaults()
// and may be overridden per socket through the Stack's CfgXxx calls.
type Options struct {
	RxQSize           uint32  `json:"rx_q_size" yaml:"rx_q_size" toml:"rx_q_size" mapstructure:"rx_q_size"`
	TxQSize           uint32  `json:"tx_q_size" yaml:"tx_q_size" toml:"tx_q_size" mapstructure:"tx_q_size"`
	AcceptQSizeMax    uint32  `json:"accept_q_size_max" yaml:"accept_q_size_max" toml:"accept_q_size_max" mapstructure:"accept_q_size_max"`
	ChildQSizeMax     uint32  `json:"child_q_size_max" yaml:"child_q_size_max" toml:"child_q_size_max" mapstructure:"child_q_size_max"`
	TimeoutRxQ        Timeout `json:"timeout_rx_q" yaml:"timeout_rx_q" toml:"timeout_rx_q" mapstructure:"timeout_rx_q"`
	TimeoutTxQ        Timeout `json:"timeout_tx_q" yaml:"timeout_tx_q" toml:"timeout_tx_q" mapstructure:"timeout_tx_q"`
	TimeoutConnReq    Timeout `json:"timeout_conn_req" yaml:"timeout_conn_req" toml:"timeout_conn_req" mapstructure:"timeout_conn_req"`
	TimeoutConnAccept Timeout `json:"timeout_conn_accept" yaml:"timeout_conn_accept" toml:"timeout_conn_accept" mapstructure:"timeout_conn_accept"`
	TimeoutConnClose  Timeout `json:"timeout_conn_close" yaml:"timeout_conn_close" toml:"timeout_conn_close" mapstructure:"timeout_conn_close"`
}

// Defaults returns the engine's built-in option set, used to initialize
// every socket record on open() and as the base a loaded Config merges into.
func Defaults() Options {
	return Options{
		RxQSize:           64 * 1024,
		TxQSize:           64 * 1024,
		AcceptQSizeMax:    16,
		ChildQSizeMax:     256,
		TimeoutRxQ:        InfiniteTimeout,
		TimeoutTxQ:        InfiniteTimeout,
		TimeoutConnReq:    TimeoutMS(30_000),
		TimeoutConnAccept: InfiniteTimeout,
		TimeoutConnClose:  TimeoutMS(10_000),
	}
}

// PoolConfig sizes the fixed socket pool and the ephemeral port range used
// by random-port binding.
type PoolConfig struct {
	MaxSockets      int    `json:"max_sockets" yaml:"max_sockets" toml:"max_sockets" mapstructure:"max_sockets"`
	EphemeralPortLo uint16 `json:"ephemeral_port_lo" yaml:"ephemeral_port_lo" toml:"ephemeral_port_lo" mapstructure:"ephemeral_port_lo"`
	EphemeralPortHi uint16 `json:"ephemeral_port_hi" yaml:"ephemeral_port_hi" toml:"ephemeral_port_hi" mapstructure:"ephemeral_port_hi"`
}

// DefaultPoolConfig mirrors the Linux default ephemeral-port range.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxSockets:      4096,
		EphemeralPortLo: 32768,
		EphemeralPortHi: 60999,
	}
}

// Config is the root, unmarshalable configuration for a Stack instance.
type Config struct {
	Pool    PoolConfig `json:"pool" yaml:"pool" toml:"pool" mapstructure:"pool"`
	Default Options    `json:"default" yaml:"default" toml:"default" mapstructure:"default"`
}

// DefaultConfig returns a Config populated entirely from package defaults.
func DefaultConfig() Config {
	return Config{
		Pool:    DefaultPoolConfig(),
		Default: Defaults(),
	}
}
