package icrypto

import (
	"encoding/binary"
)

const (
	aadRecord  = "RECORD"
	aadKeyWrap = "KEYWRAP"
)

// AADRecord binds a sealed value to its namespace, key and format version.
func AADRecord(namespace, key string, ver int) []byte {
	return buildAAD(aadRecord, namespace, key, ver)
}

// AADKeyWrap binds a wrapped device key to the store it belongs to.
func AADKeyWrap(namespace string, ver int) []byte {
	return buildAAD(aadKeyWrap, namespace, ver)
}

func buildAAD(parts ...any) []byte {
	var res []byte
	for _, p := range parts {
		switch v := p.(type) {
		case string:
			res = appendLenPrefix(res, []byte(v))
		case []byte:
			res = appendLenPrefix(res, v)
		case int:
			b := make([]byte, 4)
			binary.BigEndian.PutUint32(b, uint32(v))
			res = append(res, b...)
		}
	}
	return res
}

func appendLenPrefix(b, data []byte) []byte {
	l := make([]byte, 4)
	binary.BigEndian.PutUint32(l, uint32(len(data)))
	b = append(b, l...)
	b = append(b, data...)
	return b
}
