// Package test provides infrastructure for integration testing the testbed.
//
// The Suite runs the real engine, service, HTTP API and API client against the
// in-memory compute provider and a file-based SQLite history:
//
//	func TestExample(t *testing.T) {
//	    s := test.NewSuite(t)
//	    defer s.Cleanup()
//
//	    // Use s.APIClient to make requests
//	    // Use s.Provider to simulate provider behaviour
//	}
package test
