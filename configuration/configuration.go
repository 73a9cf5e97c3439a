// Package configuration parses the server configuration from a yaml
// document, optionally modified by environment variables.
package configuration

import (
	"fmt"
	"io"
	"reflect"
	"strings"
)

// Configuration is a versioned server configuration, intended to be
// provided by a yaml file, and optionally modified by environment
// variables.
//
// Note that yaml field names should never include _ characters, since this
// is the separator used in environment variable names.
type Configuration struct {
	// Version is the version which defines the format of the rest of the
	// configuration.
	Version Version `yaml:"version"`

	// Log supports setting various parameters related to the logging
	// subsystem.
	Log Log `yaml:"log"`

	// Server holds the TCP surface of the cache: where to listen and how
	// connections are sized and capped.
	Server Server `yaml:"server,omitempty"`

	// Storage configures the storage engine and its tuning parameters.
	Storage Storage `yaml:"storage"`

	// Debug configures the private debug endpoint. It is optional and
	// disabled by default.
	Debug Debug `yaml:"debug,omitempty"`
}

// Log represents the configuration for logging.
type Log struct {
	// Level is the granularity at which operations are logged.
	Level Loglevel `yaml:"level,omitempty"`

	// Formatter overrides the format of the log output. Valid values are
	// "text" and "json".
	Formatter string `yaml:"formatter,omitempty"`

	// Fields allows users to specify static string fields to include in
	// every log line.
	Fields map[string]interface{} `yaml:"fields,omitempty"`
}

// Server holds the listening socket and per-connection settings.
type Server struct {
	// Addr is the address the cache listens on.
	Addr string `yaml:"addr,omitempty"`

	// Port is the port the cache listens on.
	Port int `yaml:"port,omitempty"`

	// BufferSize is the per-connection read and write buffer size in
	// bytes.
	BufferSize int `yaml:"buffersize,omitempty"`

	// MaxConn caps the number of concurrently served sessions. A new
	// connection is only accepted once a permit is free.
	MaxConn int `yaml:"maxconn,omitempty"`
}

// Debug holds the private debug http server configuration. The debug
// endpoint serves pprof and optionally prometheus metrics; it is
// never meant to be exposed publicly.
type Debug struct {
	// Addr is the interface:port the debug server listens on. Empty
	// disables the debug server.
	Addr string `yaml:"addr,omitempty"`

	// Prometheus configures the metrics handler on the debug server.
	Prometheus Prometheus `yaml:"prometheus,omitempty"`
}

// Prometheus configures the prometheus scrape endpoint.
type Prometheus struct {
	Enabled bool   `yaml:"enabled,omitempty"`
	Path    string `yaml:"path,omitempty"`
}

// Parameters defines a key-value parameters mapping.
type Parameters map[string]interface{}

// Storage defines the configuration for the cache storage engine as a
// single-item map from engine name to its parameters.
type Storage map[string]Parameters

// Type returns the storage engine type, such as sharded.
func (storage Storage) Type() string {
	var storageType []string

	// Return only key in this map
	for k := range storage {
		storageType = append(storageType, k)
	}
	if len(storageType) > 1 {
		panic("multiple storage engines specified in configuration or environment: " + strings.Join(storageType, ", "))
	}
	if len(storageType) == 1 {
		return storageType[0]
	}
	return ""
}

// Parameters returns the Parameters map for a Storage configuration.
func (storage Storage) Parameters() Parameters {
	return storage[storage.Type()]
}

// UnmarshalYAML implements the yaml.Unmarshaler interface. It unmarshals a
// single item map into a Storage, or a plain string into a Storage of that
// engine type with no parameters.
func (storage *Storage) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var storageMap map[string]Parameters
	err := unmarshal(&storageMap)
	if err == nil {
		if len(storageMap) > 1 {
			types := make([]string, 0, len(storageMap))
			for k := range storageMap {
				types = append(types, k)
			}
			return fmt.Errorf("must provide exactly one storage engine, got %v", types)
		}
		*storage = storageMap
		return nil
	}

	var storageType string
	if err := unmarshal(&storageType); err != nil {
		return err
	}
	*storage = Storage{storageType: Parameters{}}
	return nil
}

// MarshalYAML implements the yaml.Marshaler interface.
func (storage Storage) MarshalYAML() (interface{}, error) {
	if storage.Parameters() == nil {
		return storage.Type(), nil
	}
	return map[string]Parameters(storage), nil
}

// Loglevel is the level at which operations are logged. This can be error,
// warn, info, debug or trace.
type Loglevel string

// UnmarshalYAML implements the yaml.Umarshaler interface, lowercasing the
// string and validating that it represents a valid loglevel.
func (loglevel *Loglevel) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var loglevelString string
	err := unmarshal(&loglevelString)
	if err != nil {
		return err
	}

	loglevelString = strings.ToLower(loglevelString)
	switch loglevelString {
	case "error", "warn", "info", "debug", "trace":
	default:
		return fmt.Errorf("invalid loglevel %s Must be one of [error, warn, info, debug, trace]", loglevelString)
	}

	*loglevel = Loglevel(loglevelString)
	return nil
}

// Default values applied by Parse when the document leaves them unset.
const (
	DefaultAddr       = "127.0.0.1"
	DefaultPort       = 6379
	DefaultBufferSize = 8192
	DefaultMaxConn    = 1024
)

// Parse parses an input configuration yaml document into a Configuration
// struct.
//
// Environment variables may be used to override configuration parameters
// other than version, following the scheme below:
// Configuration.Abc may be replaced by the value of KELD_ABC,
// Configuration.Abc.Xyz may be replaced by the value of KELD_ABC_XYZ, and
// so forth.
func Parse(rd io.Reader) (*Configuration, error) {
	in, err := io.ReadAll(rd)
	if err != nil {
		return nil, err
	}

	p := NewParser("keld", []VersionedParseInfo{
		{
			Version: MajorMinorVersion(0, 1),
			ParseAs: reflect.TypeOf(v0_1Configuration{}),
			ConversionFunc: func(c interface{}) (interface{}, error) {
				v0_1, ok := c.(*v0_1Configuration)
				if !ok {
					return nil, fmt.Errorf("expected *v0_1Configuration, received %#v", c)
				}
				if v0_1.Log.Level == Loglevel("") {
					v0_1.Log.Level = Loglevel("info")
				}
				if v0_1.Server.Addr == "" {
					v0_1.Server.Addr = DefaultAddr
				}
				if v0_1.Server.Port == 0 {
					v0_1.Server.Port = DefaultPort
				}
				if v0_1.Server.BufferSize <= 0 {
					v0_1.Server.BufferSize = DefaultBufferSize
				}
				if v0_1.Server.MaxConn <= 0 {
					v0_1.Server.MaxConn = DefaultMaxConn
				}
				if v0_1.Storage.Type() == "" {
					v0_1.Storage = Storage{"sharded": Parameters{}}
				}
				return (*Configuration)(v0_1), nil
			},
		},
	})

	config := new(Configuration)
	err = p.Parse(in, config)
	if err != nil {
		return nil, err
	}

	return config, nil
}

// v0_1Configuration is a Version 0.1 Configuration struct. This is
// currently aliased to Configuration, as it is the current version.
type v0_1Configuration Configuration
