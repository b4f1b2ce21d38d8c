package icrypto

import "github.com/jmcleod/agentportal/internal/util"

const recordKeyInfo = "agentportal:record-key:v1"

// DeriveRecordKey derives the key that seals the value stored under name.
func DeriveRecordKey(deviceKey []byte, name string) ([]byte, error) {
	return util.HKDF(deviceKey, []byte(name), []byte(recordKeyInfo))
}
