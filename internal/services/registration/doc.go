// Package registration performs the signed topic registration handshake.
//
// A batch of conversation topics is bound to the owner's inbox with one
// wallet-signed public key proof and one inbox signature per topic, then
// submitted to the backend index in a single request so push notifications
// can be routed for those topics. Accept and block flags are applied to the
// protocol-native consent lists first, one call per list.
package registration
