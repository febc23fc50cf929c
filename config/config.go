package config

type AppConfig struct {
	Tree    *TreeConfig
	Storage *StorageConfig
	Log     *LogConfig
}

func New() *AppConfig {
	return &AppConfig{
		Tree:    NewTreeConfig(),
		Storage: NewStorageConfig(),
		Log:     NewLogConfig(),
	}
}
