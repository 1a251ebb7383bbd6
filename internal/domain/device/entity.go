package device

type Device struct {
	ID        string
	Name      string
	IPAddress string
	Port      int
	IsActive  bool
	BranchID  *string
}

// Label is the device identifier written into attendance rows.
func (d Device) Label() string {
	name := d.Name
	if name == "" {
		name = "Device"
	}
	return name + " (" + d.IPAddress + ")"
}
