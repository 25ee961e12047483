package engine

type ApplicationConfig struct {
	// The application name used in windowing and logs. Overrides app.name
	// of the configuration file when set.
	Name string
	// Path of the TOML configuration. Empty runs on the defaults.
	ConfigPath string
	// Watch reloads the configuration file when it changes.
	Watch bool
}
