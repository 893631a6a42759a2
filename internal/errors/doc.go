// Package errors turns failures of the nettables CLI into structured,
// actionable messages.
//
// Each registered code maps to a category, a short message and a longer
// explanation. Callers attach a hint and the underlying error:
//
//	err := errors.New("NT101").
//	    WithSuggestion("Start a server with `nettables server`").
//	    Wrap(dialErr)
//
//	fmt.Fprint(os.Stderr, err.Format())
//	// ERROR NT101: Cannot reach server
//	//
//	//   The client could not open a connection to the server address.
//	//
//	//   Cause: dial tcp 127.0.0.1:1735: connect: connection refused
//	//
//	//   Hint: Start a server with `nettables server`
//
// Configuration errors can carry a file location; Format then prints
// the surrounding lines of nettables.toml with the offending one marked.
package errors
