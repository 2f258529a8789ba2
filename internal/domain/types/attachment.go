package types

// AttachmentScheme is the only URL scheme receivers accept for descriptors.
const AttachmentScheme = "https://"

// RemoteAttachment describes an encrypted upload. ContentDigest is the
// hex SHA-256 of the ciphertext served at URL.
type RemoteAttachment struct {
	URL           string `json:"url" cbor:"url"`
	ContentDigest string `json:"contentDigest" cbor:"contentDigest"`
	Salt          []byte `json:"salt" cbor:"salt"`
	Nonce         []byte `json:"nonce" cbor:"nonce"`
	Secret        []byte `json:"secret" cbor:"secret"`
	Scheme        string `json:"scheme" cbor:"scheme"`
	Filename      string `json:"filename" cbor:"filename"`
	ContentLength int    `json:"contentLength" cbor:"contentLength"`
}

// Attachment is a decrypted file.
type Attachment struct {
	Filename string `cbor:"filename"`
	MimeType string `cbor:"mimeType"`
	Data     []byte `cbor:"data"`
}
