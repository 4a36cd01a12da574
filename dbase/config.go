package dbase

import (
	"github.com/spf13/viper"
)

// Config is a struct containing the configuration for opening a dBase table.
// The filename is mandatory unless the table is opened with OpenSource.
//
// Every other field is optional and defaults to its zero value.
// If neither Converter nor Encoding is set the code page mark of the header is interpreted.
type Config struct {
	Filename              string                   `mapstructure:"filename"`                 // The filename of the DBF file.
	Encoding              string                   `mapstructure:"encoding"`                 // Encoding name overriding the code page mark, e.g. "cp866".
	Converter             EncodingConverter        `mapstructure:"-"`                        // Explicit encoding converter, takes precedence over Encoding.
	IgnoreCase            bool                     `mapstructure:"ignore_case"`              // Case insensitive column lookup.
	LowercaseFieldNames   bool                     `mapstructure:"lowercase_field_names"`    // Column names are lowercased at open time.
	IgnoreMissingMemoFile bool                     `mapstructure:"ignore_missing_memo_file"` // Memo fields decode to nil if the memo file is absent.
	TrimSpaces            bool                     `mapstructure:"trim_strings"`             // Trim leading padding of character fields as well.
	ValidateFields        bool                     `mapstructure:"validate_fields"`          // Field parse failures are errors instead of InvalidValue placeholders.
	SkipDeleted           bool                     `mapstructure:"skip_deleted_records"`     // Deleted records are not enumerated.
	MaxRecords            int                      `mapstructure:"max_records"`              // Caps the number of enumerated records, 0 means no limit.
	BufferSize            int                      `mapstructure:"buffer_size"`              // Read ahead buffer size in bytes.
	MemoryMap             bool                     `mapstructure:"memory_map"`               // Map the table file into memory instead of reading it.
	Parser                FieldParser              `mapstructure:"-"`                        // Custom field parser, DefaultParser if nil.
	Modifications         map[string]*Modification `mapstructure:"-"`                        // Per column output modifications keyed by column name.
}

// Modification allows to change the column name or value of a column when converting rows.
// The TrimSpaces option is only used for a specific column, if the general TrimSpaces option in the config is false.
type Modification struct {
	TrimSpaces  bool                                   // Trim spaces from string values
	Convert     func(interface{}) (interface{}, error) // Conversion function to convert the value
	ExternalKey string                                 // External key to use for the column
}

// LoadConfig reads the option surface from a YAML, TOML or JSON file.
// Keys match the mapstructure tags of Config; missing keys keep their zero value.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetDefault("buffer_size", defaultBufferSize)
	if err := v.ReadInConfig(); err != nil {
		return nil, newError("dbase-config-load-1", err)
	}
	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, newError("dbase-config-load-2", err)
	}
	debugf("Loaded configuration from %s: %+v", path, config)
	return config, nil
}

func (c *Config) bufferSize() int {
	if c.BufferSize <= 0 {
		return defaultBufferSize
	}
	return c.BufferSize
}

func (c *Config) parser() FieldParser {
	if c.Parser == nil {
		return DefaultParser{}
	}
	return c.Parser
}

// converter resolves the active encoding: explicit converter, then encoding name, then code page mark.
func (c *Config) converter(codePage byte) (EncodingConverter, error) {
	if c.Converter != nil {
		return c.Converter, nil
	}
	if c.Encoding != "" {
		conv, err := ConverterFromName(c.Encoding)
		if err != nil {
			return nil, newError("dbase-config-converter-1", err)
		}
		return conv, nil
	}
	return ConverterFromCodePage(codePage), nil
}
