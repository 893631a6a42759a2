// Package nttest provides helpers for testing code that talks to a
// nettables server.
//
// # Quick Start
//
//	func TestDashboard(t *testing.T) {
//	    h := nttest.NewServer().
//	        WithEntry("/SmartDashboard/speed", 1.5).
//	        Start(t)
//
//	    c, st := h.Connect(t)
//	    nttest.ExpectValue(t, st, "/SmartDashboard/speed", 1.5)
//
//	    st.Set("/SmartDashboard/speed", 2.0)
//	    nttest.ExpectValue(t, h.Store, "/SmartDashboard/speed", 2.0)
//	    _ = c
//	}
//
// Servers listen on a loopback port and are stopped by t.Cleanup, as are
// clients returned by Connect.
package nttest
