package config

import "github.com/spf13/viper"

// Config holds everything the API process needs at startup.
type Config struct {
	ServerAddress  string   `mapstructure:"SERVER_ADDRESS"`
	DatabaseURL    string   `mapstructure:"DATABASE_URL"`
	MigrationURL   string   `mapstructure:"MIGRATION_URL"`
	JWTSecret      string   `mapstructure:"JWT_SECRET"`
	SupplierTables []string `mapstructure:"SUPPLIER_TABLES"`
	IBGEBaseURL    string   `mapstructure:"IBGE_BASE_URL"`
}

// Load reads app.env from path, letting real environment variables
// override file values.
func Load(path string) (cfg Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("app")
	viper.SetConfigType("env")

	viper.SetDefault("SERVER_ADDRESS", ":8080")
	viper.SetDefault("MIGRATION_URL", "file://migrations")
	viper.SetDefault("SUPPLIER_TABLES", []string{"suppliers", "usuarios", "users"})
	viper.SetDefault("IBGE_BASE_URL", "https://servicodados.ibge.gov.br/api/v1/localidades")

	viper.AutomaticEnv()

	if err = viper.ReadInConfig(); err != nil {
		// A missing file is fine; env vars and defaults still apply.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return
		}
		err = nil
	}
	err = viper.Unmarshal(&cfg)
	return
}
