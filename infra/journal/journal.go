package journal

import (
	"encoding/binary"
	"hash/crc32"
	"os"
	"path/filepath"
)

type Config struct {
	Dir         string
	SegmentSize int64
}

// Journal appends CRC-framed records to size-rotated segment files.
// Frame: [type:1][seq:8][time:8][len:4][payload][crc:4].
type Journal struct {
	dir      string
	segSize  int64
	current  *segment
	segIndex int
}

func Open(cfg Config) (*Journal, error) {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, err
	}
	if cfg.SegmentSize <= 0 {
		cfg.SegmentSize = 2 << 20
	}

	// Resume appending to the newest existing segment.
	files, err := filepath.Glob(filepath.Join(cfg.Dir, "segment-*.journal"))
	if err != nil {
		return nil, err
	}
	index := 0
	if n := len(files); n > 0 {
		index = n - 1
	}

	seg, err := openSegment(cfg.Dir, index)
	if err != nil {
		return nil, err
	}
	return &Journal{
		dir:      cfg.Dir,
		segSize:  cfg.SegmentSize,
		current:  seg,
		segIndex: index,
	}, nil
}

func (j *Journal) Append(r *Record) error {
	payloadLen := uint32(len(r.Data))
	buf := make([]byte, 1+8+8+4+payloadLen+4)

	buf[0] = byte(r.Type)
	binary.BigEndian.PutUint64(buf[1:9], r.Seq)
	binary.BigEndian.PutUint64(buf[9:17], uint64(r.Time))
	binary.BigEndian.PutUint32(buf[17:21], payloadLen)
	copy(buf[21:], r.Data)

	crc := crc32.ChecksumIEEE(buf[:21+payloadLen])
	binary.BigEndian.PutUint32(buf[21+payloadLen:], crc)

	if err := j.current.append(buf); err != nil {
		return err
	}
	if j.current.offset >= j.segSize {
		return j.rotate()
	}
	return nil
}

func (j *Journal) rotate() error {
	_ = j.current.close()
	j.segIndex++

	seg, err := openSegment(j.dir, j.segIndex)
	if err != nil {
		return err
	}
	j.current = seg
	return nil
}

func (j *Journal) Sync() error {
	return j.current.sync()
}

func (j *Journal) Close() error {
	return j.current.close()
}
