// Package process controls the VM processes bound to slots. The
// default implementation drives systemd units (microvm@<slot>.service);
// the Controller interface keeps the engine independent of the
// supervisor in use.
package process
