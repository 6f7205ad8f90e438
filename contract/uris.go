package contract

// MIME type markers for collections and single rows
const (
	DirBaseType  = "vnd.dir"
	ItemBaseType = "vnd.item"
)

// Contract binds the scheme and authority under which every collection is
// addressed, e.g. content://com.example.android.bluetoothchat/sensor.
type Contract struct {
	Scheme    string
	Authority string
}

// New returns a contract for the given scheme and authority
func New(scheme, authority string) Contract {
	return Contract{Scheme: scheme, Authority: authority}
}

// DirType returns the MIME type describing a whole collection
func (c Contract) DirType(k Kind) string {
	return DirBaseType + "/" + c.Authority + "/" + k.Path()
}

// ItemType returns the MIME type describing a single row
func (c Contract) ItemType(k Kind) string {
	return ItemBaseType + "/" + c.Authority + "/" + k.Path()
}
