// Package security groups secret resolution (secrets) and API key
// authentication (auth). The packages have no dependency on each other;
// the command wires auth keys from secrets at startup.
package security
