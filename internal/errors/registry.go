package errors

// Template defines a registered error type.
type Template struct {
	Category Category
	Message  string
	Detail   string
}

// registry maps error codes to their templates.
var registry = map[string]Template{
	// Configuration (NT001-NT099)

	"NT001": {
		Category: CategoryConfig,
		Message:  "Configuration file not found",
		Detail:   "The file given with --config does not exist. Without --config, nettables.toml in the working directory is optional.",
	},
	"NT002": {
		Category: CategoryConfig,
		Message:  "Configuration file is not valid TOML",
		Detail:   "The configuration file could not be parsed.",
	},
	"NT003": {
		Category: CategoryConfig,
		Message:  "Invalid configuration value",
		Detail:   "A setting in the configuration file or on the command line is out of range or malformed.",
	},

	// Network and protocol (NT100-NT199)

	"NT101": {
		Category: CategoryNetwork,
		Message:  "Cannot reach server",
		Detail:   "The client could not open a connection to the server address.",
	},
	"NT102": {
		Category: CategoryProtocol,
		Message:  "Server rejected the protocol version",
		Detail:   "The server speaks a different protocol revision and closed the session.",
	},
	"NT103": {
		Category: CategoryNetwork,
		Message:  "Server did not finish the handshake",
		Detail:   "A connection was opened but the initial snapshot never completed.",
	},
	"NT104": {
		Category: CategoryNetwork,
		Message:  "Address already in use",
		Detail:   "Another process is listening on the configured address.",
	},

	// Command usage (NT200-NT299)

	"NT201": {
		Category: CategoryCLI,
		Message:  "Value does not match the entry type",
		Detail:   "An entry keeps the type it was created with. Writes of another type are rejected.",
	},
	"NT202": {
		Category: CategoryCLI,
		Message:  "Invalid value",
		Detail:   "The value could not be parsed as the requested type.",
	},
	"NT203": {
		Category: CategoryCLI,
		Message:  "Entry not found",
	},
}

// Lookup returns the template for code.
func Lookup(code string) (Template, bool) {
	t, ok := registry[code]
	return t, ok
}

// Codes returns every registered code.
func Codes() []string {
	codes := make([]string, 0, len(registry))
	for code := range registry {
		codes = append(codes, code)
	}
	return codes
}
