// Package store holds the table of named, typed entries that nettables
// keeps in sync between peers.
//
// Every mutation carries an Origin. Code in this process uses Local;
// the client and server engines use Remote(sessionID) when applying
// changes received from a peer. All listeners see all mutations, and the
// engines' forwarding listeners filter on Origin so a change never
// travels back to the peer it came from.
//
//	s := store.New()
//	id := s.AddListener(func(n store.Notification) {
//	    log.Println(n.Event, n.Entry.Name, n.Entry.Value, n.Origin)
//	}, store.ListenerOptions{Prefix: "robot/"})
//	s.Set("robot/enabled", true)
//	s.RemoveListener(id)
//
// An entry's type is fixed when it is created. Writing a value of a
// different type fails with ErrTypeMismatch and leaves the entry as it was.
// Writing a value equal to the current one changes nothing and notifies
// nobody.
package store
