package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"text/template"
	"time"

	sprig "github.com/go-task/slim-sprig/v3"
	validator "github.com/go-playground/validator/v10"
	yaml "gopkg.in/yaml.v3"

	"github.com/rupor-github/gencfg"
)

//go:embed config.yaml.tmpl
var ConfigTmpl []byte

type (
	TemplateFieldName string

	DocumentConfig struct {
		PreserveClass         bool          `yaml:"preserve_class"`
		EmbedImages           bool          `yaml:"embed_images"`
		StylesheetPath        string        `yaml:"stylesheet_path" sanitize:"assure_file_access"`
		StylesheetsRoot       string        `yaml:"stylesheets_root"`
		ReloadInterval        time.Duration `yaml:"reload_interval"`
		OutputNameTemplate    string        `yaml:"output_name_template"`
		FileNameTransliterate bool          `yaml:"file_name_transliterate"`
		Extensions            []string      `yaml:"extensions" validate:"min=1,dive,required,startswith=."`
		OutputExtension       string        `yaml:"output_extension" validate:"required,startswith=."`
	}

	Config struct {
		Version   int            `yaml:"version" validate:"eq=1"`
		Document  DocumentConfig `yaml:"document"`
		Logging   LoggingConfig  `yaml:"logging"`
		Reporting ReporterConfig `yaml:"reporting"`
	}
)

const (
	// NOTE: must match yaml field name above
	OutputNameTemplateFieldName TemplateFieldName = "output_name_template"
)

var requiredOptions = append([]func(*gencfg.ProcessingOptions){},
	gencfg.WithDoNotExpandField(string(OutputNameTemplateFieldName)),
)

// checkConfig performs validations which cannot be expressed with tags.
func checkConfig(sl validator.StructLevel) {
	cfg, ok := sl.Current().Interface().(Config)
	if !ok {
		return
	}
	if len(cfg.Document.OutputNameTemplate) > 0 {
		if _, err := template.New(string(OutputNameTemplateFieldName)).Funcs(sprig.FuncMap()).Parse(cfg.Document.OutputNameTemplate); err != nil {
			sl.ReportError(cfg.Document.OutputNameTemplate, "OutputNameTemplate", string(OutputNameTemplateFieldName), "template", err.Error())
		}
	}
	for _, ext := range cfg.Document.Extensions {
		if ext == cfg.Document.OutputExtension {
			// output files would be picked up again when destination is under source
			sl.ReportError(cfg.Document.OutputExtension, "OutputExtension", "output_extension", "excluded_with_extensions", ext)
		}
	}
}

func unmarshalConfig(data []byte, cfg *Config, process bool) (*Config, error) {
	// We want to use only fields we defined so we cannot use yaml.Unmarshal
	// directly here
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration data: %w", err)
	}
	if process {
		// sanitize and validate what has been loaded
		if err := gencfg.Sanitize(cfg); err != nil {
			return nil, err
		}
		if err := gencfg.Validate(cfg, gencfg.WithAdditionalChecks(checkConfig)); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// LoadConfiguration reads the configuration from the file at the given path,
// superimposes its values on top of expanded configuration template to
// provide sane defaults and performs validation.
func LoadConfiguration(path string, options ...func(*gencfg.ProcessingOptions)) (*Config, error) {
	haveFile := len(path) > 0

	data, err := gencfg.Process(ConfigTmpl, append(requiredOptions, options...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to process configuration template: %w", err)
	}
	cfg, err := unmarshalConfig(data, &Config{}, !haveFile)
	if err != nil {
		return nil, fmt.Errorf("failed to process configuration template: %w", err)
	}
	if !haveFile {
		return cfg, nil
	}

	// overwrite cfg values with values from the file
	data, err = os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg, err = unmarshalConfig(data, cfg, haveFile)
	if err != nil {
		return nil, fmt.Errorf("failed to process configuration file: %w", err)
	}
	return cfg, nil
}

// Prepare generates configuration file from template and returns it as a byte
// slice.
func Prepare() ([]byte, error) {
	return gencfg.Process(ConfigTmpl, requiredOptions...)
}

func Dump(cfg *Config) ([]byte, error) {
	data, err := yaml.Marshal(*cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config to yaml: %w", err)
	}
	return data, nil
}
