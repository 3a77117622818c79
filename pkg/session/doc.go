/*
Package session manages the host stores of the widgets a server is hosting.

Stores are opened on first use, shared by every connection to the same widget and
closed when the last connection goes away. Seeding and other read-modify-write
sequences on a widget run under its operation lock.
*/
package session
