// Package httpserver runs the proxy's HTTP listener. Binding the socket is a
// separate step so that bind failures surface before serving starts, and
// shutdown moves through an explicit draining phase in which new connections
// are refused while in-flight requests complete.
package httpserver
