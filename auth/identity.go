package auth

import "fmt"

// ClientIdentity labels this installation to the remote service. It is built
// once at process start and passed by value.
type ClientIdentity struct {
	Hostname       string
	ExecutableName string
}

// DeviceName is the label the remote shows for a paired device.
func (id ClientIdentity) DeviceName() string {
	return fmt.Sprintf("%s::%s", id.Hostname, id.ExecutableName)
}
