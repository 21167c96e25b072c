package sys

const (
	// PageSize is the payload capacity of one page object.
	PageSize = 4000

	// PrefixSize is the length of the big-endian payload length header.
	PrefixSize = 4

	DataDir = "data"
)
