// Package discovery locates devices on the local network.
//
// Three sources feed the same address set: a UDP broadcast probe that
// devices answer with their identity, a TCP connect sweep over configured
// CIDR ranges, and a static host list. The engine merges whatever each
// source finds; addresses here are only candidates, and the session layer
// decides whether anything real answers on the control port.
package discovery
