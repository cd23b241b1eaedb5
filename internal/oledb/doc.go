// Package oledb reads picture blobs out of Microsoft Access databases.
//
// Connections go through database/sql. On Windows the adodb driver from
// github.com/mattn/go-adodb talks to the Jet or ACE OLE DB provider; the
// command-line tools register it with a blank import. Any other driver
// that returns the id and blob columns works the same way.
package oledb
