package dos

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
)

const (
	gptSignature  = "EFI PART"
	gptMinHeader  = 92
	gptCRCOffset  = 16
	gptGUIDOffset = 56
)

// guidString formats a mixed-endian GPT GUID.
func guidString(b []byte) string {
	return fmt.Sprintf("%08x-%04x-%04x-%02x%02x-%02x%02x%02x%02x%02x%02x",
		binary.LittleEndian.Uint32(b[0:4]),
		binary.LittleEndian.Uint16(b[4:6]),
		binary.LittleEndian.Uint16(b[6:8]),
		b[8], b[9], b[10], b[11], b[12], b[13], b[14], b[15])
}

func validateGPTHeader(hdr []byte) error {
	size := binary.LittleEndian.Uint32(hdr[12:16])
	if size < gptMinHeader || int(size) > len(hdr) {
		return fmt.Errorf("GPT header size %d out of range", size)
	}
	want := binary.LittleEndian.Uint32(hdr[gptCRCOffset:])
	tmp := make([]byte, size)
	copy(tmp, hdr[:size])
	binary.LittleEndian.PutUint32(tmp[gptCRCOffset:], 0)
	if got := crc32.ChecksumIEEE(tmp); got != want {
		return fmt.Errorf("GPT header CRC mismatch: calculated 0x%08X, expected 0x%08X", got, want)
	}
	return nil
}

// DetectGPT returns ErrGPT when mbr is a protective MBR and sector 1 holds a
// valid GPT header. A protective entry without a valid header is treated as
// a plain DOS table.
func DetectGPT(r SectorReader, mbr []byte) error {
	protective := false
	for i := 0; i < entryCount; i++ {
		if decodeEntry(mbr[entryOffset(i):]).Type == TypeGPTProtective {
			protective = true
		}
	}
	if !protective {
		return nil
	}
	hdr, err := r.ReadSector(1)
	if err != nil {
		return &IOError{Op: "read", LBA: 1, Err: err}
	}
	if len(hdr) < gptMinHeader || string(hdr[:8]) != gptSignature || validateGPTHeader(hdr) != nil {
		return nil
	}
	return fmt.Errorf("disk %s: %w", guidString(hdr[gptGUIDOffset:gptGUIDOffset+16]), ErrGPT)
}
