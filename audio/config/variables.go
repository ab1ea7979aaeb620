/*
NAME
  variables.go

DESCRIPTION
  variables.go lists the table-driven variable descriptors consumed by
  Config's Update and Validate methods.

AUTHOR
  Cras Engine Contributors

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package config

import (
	"strconv"

	"github.com/ausocean/cras/audio/format"
)

// variables describes the variables that can be used for engine config
// control: the name used as a map key, a function for updating this
// variable in a Config from a string, and a function for validating the
// resulting field value.
var variables = []struct {
	Name     string
	Update   func(*Config, string)
	Validate func(*Config)
}{
	{
		Name:   KeySampleRate,
		Update: func(c *Config, v string) { c.SampleRate = uint(parseUint(KeySampleRate, v, c)) },
		Validate: func(c *Config) {
			if c.SampleRate == 0 {
				c.LogInvalidField(KeySampleRate, defaultSampleRate)
				c.SampleRate = defaultSampleRate
			}
		},
	},
	{
		Name:   KeyChannels,
		Update: func(c *Config, v string) { c.Channels = int(parseUint(KeyChannels, v, c)) },
		Validate: func(c *Config) {
			if c.Channels <= 0 {
				c.LogInvalidField(KeyChannels, defaultChannels)
				c.Channels = defaultChannels
			}
		},
	},
	{
		Name: KeySampleFormat,
		Update: func(c *Config, v string) {
			sf, err := format.FromString(v)
			if err != nil {
				if c.Logger != nil {
					c.Logger.Warning("invalid SampleFormat param", "value", v)
				}
				return
			}
			c.SampleFormat = sf
		},
		Validate: func(c *Config) {
			if c.SampleFormat == format.Unknown {
				c.LogInvalidField(KeySampleFormat, format.S16LE)
				c.SampleFormat = format.S16LE
			}
		},
	},
	{
		Name:   KeyBufferFrames,
		Update: func(c *Config, v string) { c.BufferFrames = int(parseUint(KeyBufferFrames, v, c)) },
		Validate: func(c *Config) {
			if c.BufferFrames <= 0 {
				c.LogInvalidField(KeyBufferFrames, defaultBufferFrames)
				c.BufferFrames = defaultBufferFrames
			}
		},
	},
	{
		Name:   KeyCBThreshold,
		Update: func(c *Config, v string) { c.CBThreshold = int(parseUint(KeyCBThreshold, v, c)) },
		Validate: func(c *Config) {
			if c.CBThreshold <= 0 || c.CBThreshold > c.BufferFrames {
				c.LogInvalidField(KeyCBThreshold, defaultCBThreshold)
				c.CBThreshold = defaultCBThreshold
			}
		},
	},
	{
		Name:   KeyMinCBLevel,
		Update: func(c *Config, v string) { c.MinCBLevel = int(parseUint(KeyMinCBLevel, v, c)) },
		Validate: func(c *Config) {
			if c.MinCBLevel <= 0 {
				c.LogInvalidField(KeyMinCBLevel, defaultMinCBLevel)
				c.MinCBLevel = defaultMinCBLevel
			}
		},
	},
	{
		Name:   KeyMaxCBLevel,
		Update: func(c *Config, v string) { c.MaxCBLevel = int(parseUint(KeyMaxCBLevel, v, c)) },
		Validate: func(c *Config) {
			if c.MaxCBLevel <= c.MinCBLevel {
				c.LogInvalidField(KeyMaxCBLevel, defaultMaxCBLevel)
				c.MaxCBLevel = defaultMaxCBLevel
			}
		},
	},
	{
		Name:   KeyPolyphaseQuality,
		Update: func(c *Config, v string) { c.PolyphaseQuality = int(parseUint(KeyPolyphaseQuality, v, c)) },
	},
}

// parseUint parses v as an unsigned integer, logging and returning 0 on
// failure so Validate can apply the field's default.
func parseUint(name, v string, c *Config) uint64 {
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		if c.Logger != nil {
			c.Logger.Warning("invalid "+name+" param", "value", v)
		}
		return 0
	}
	return n
}
