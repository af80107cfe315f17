package domain

// User is the rider profile stored in PostgreSQL, including the metadata of
// the device that records their rides. Email is the upsert key: submitting a
// payload with a known email overwrites every other field of that row.
type User struct {
	ID             int64
	CPF            string
	Name           string
	Phone          string
	Sex            string
	Email          string
	BirthDate      string
	Password       string
	DeviceMaker    string
	DeviceModel    string
	DeviceSerial   string
	DeviceFirmware string
}
