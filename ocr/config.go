package ocr

import "time"

// Config selects and configures an engine. Only the section matching Engine
// is read.
type Config struct {
	Engine     string           `yaml:"engine"`
	Remote     RemoteConfig     `yaml:"remote"`
	DocumentAI DocumentAIConfig `yaml:"documentai"`
	Tesseract  TesseractConfig  `yaml:"tesseract"`
}

// RemoteConfig points at the hosted document-processing function.
type RemoteConfig struct {
	BaseURL     string        `yaml:"base_url"`
	ServiceKey  string        `yaml:"service_key"`
	Function    string        `yaml:"function"`
	Bucket      string        `yaml:"bucket"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxAttempts int           `yaml:"max_attempts"`
	Backoff     time.Duration `yaml:"backoff"`
}

// DocumentAIConfig identifies a Google Cloud Document AI processor.
type DocumentAIConfig struct {
	ProjectID       string        `yaml:"project_id"`
	Location        string        `yaml:"location"`
	ProcessorID     string        `yaml:"processor_id"`
	CredentialsJSON string        `yaml:"credentials_json"`
	CredentialsFile string        `yaml:"credentials_file"`
	Timeout         time.Duration `yaml:"timeout"`
}

// TesseractConfig carries defaults applied to every input.
type TesseractConfig struct {
	Languages []string `yaml:"languages"`
	PSM       int      `yaml:"psm"`
}

// DefaultConfig returns the configuration used when none is supplied.
func DefaultConfig() Config {
	return Config{
		Engine: "noop",
		Remote: RemoteConfig{
			Function:    "process-delivery-docket",
			Bucket:      "delivery-dockets",
			Timeout:     60 * time.Second,
			MaxAttempts: 3,
			Backoff:     500 * time.Millisecond,
		},
		DocumentAI: DocumentAIConfig{
			Location: "us",
			Timeout:  60 * time.Second,
		},
		Tesseract: TesseractConfig{
			Languages: []string{"eng"},
		},
	}
}
