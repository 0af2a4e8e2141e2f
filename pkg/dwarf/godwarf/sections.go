package godwarf

import (
	"bytes"
	"compress/zlib"
	"debug/elf"
	"encoding/binary"
	"fmt"
	"io/ioutil"
)

// GetDebugSection returns the data of the named debug section ("info",
// "line", "frame", ...), looking for both .debug_xxx and the compressed
// .zdebug_xxx variant. The decoding core never calls this, it is the
// boundary to the container object format.
func GetDebugSection(f *elf.File, name string) ([]byte, error) {
	sec := f.Section(".debug_" + name)
	if sec != nil {
		return sec.Data()
	}
	sec = f.Section(".zdebug_" + name)
	if sec == nil {
		return nil, fmt.Errorf("could not find .debug_%s section", name)
	}
	b, err := sec.Data()
	if err != nil {
		return nil, err
	}
	return decompressMaybe(b)
}

func decompressMaybe(b []byte) ([]byte, error) {
	if len(b) < 12 || string(b[:4]) != "ZLIB" {
		// not compressed
		return b, nil
	}

	dlen := binary.BigEndian.Uint64(b[4:12])
	r, err := zlib.NewReader(bytes.NewBuffer(b[12:]))
	if err != nil {
		return nil, err
	}
	d, err := ioutil.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if uint64(len(d)) != dlen {
		return nil, fmt.Errorf("decompressed size mismatch: have %d want %d", len(d), dlen)
	}
	return d, nil
}
