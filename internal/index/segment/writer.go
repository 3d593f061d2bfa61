package segment

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"time"
)

// Writer serializes term entries and stored documents into new segment
// files. Grounded on the teacher's internal/indexer/segment/writer.go: the
// same write-to-.tmp-then-fsync-then-rename discipline, the same
// offset-tracked-while-streaming approach to building the dictionary, just
// with a second dictionary (domain -> ordinal) and a stored-doc table
// added alongside the term dictionary.
type Writer struct {
	dataDir string
}

// NewWriter creates a Writer that writes segments into dataDir.
func NewWriter(dataDir string) *Writer {
	return &Writer{dataDir: dataDir}
}

// Write atomically creates a new segment file containing terms (sorted by
// Term) and docs (sorted by Domain; a doc's index in docs is its ordinal,
// referenced by the domain dictionary and by tombstone bitmaps). Returns
// the segment's summary Info, whose ID is the segment's filename.
func (w *Writer) Write(terms []TermEntry, docs []Doc) (Info, error) {
	if len(docs) == 0 {
		return Info{}, fmt.Errorf("cannot write segment with no documents")
	}
	if err := os.MkdirAll(w.dataDir, 0755); err != nil {
		return Info{}, fmt.Errorf("creating segment directory: %w", err)
	}

	name := fmt.Sprintf("seg_%d.sdx", time.Now().UnixNano())
	finalPath := filepath.Join(w.dataDir, name)
	tmpPath := finalPath + ".tmp"

	f, err := os.Create(tmpPath)
	if err != nil {
		return Info{}, fmt.Errorf("creating temp segment file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(make([]byte, HeaderSize)); err != nil {
		return Info{}, fmt.Errorf("reserving header: %w", err)
	}

	postOffset, _ := f.Seek(0, 1)
	termDict := make([]termDictEntry, 0, len(terms))
	for _, entry := range terms {
		offset, _ := f.Seek(0, 1)
		data, err := json.Marshal(entry.Postings)
		if err != nil {
			return Info{}, fmt.Errorf("marshaling postings for term %q: %w", entry.Term, err)
		}
		if _, err := f.Write(data); err != nil {
			return Info{}, fmt.Errorf("writing postings for term %q: %w", entry.Term, err)
		}
		termDict = append(termDict, termDictEntry{
			Term:       entry.Term,
			PostOffset: offset - postOffset,
			PostLen:    len(data),
			DocFreq:    len(entry.Postings),
		})
	}
	postEnd, _ := f.Seek(0, 1)
	postSize := postEnd - postOffset

	termDictOffset := postEnd
	termDictBytes, err := json.Marshal(termDict)
	if err != nil {
		return Info{}, fmt.Errorf("marshaling term dictionary: %w", err)
	}
	if _, err := f.Write(termDictBytes); err != nil {
		return Info{}, fmt.Errorf("writing term dictionary: %w", err)
	}
	termDictEnd, _ := f.Seek(0, 1)
	termDictSize := termDictEnd - termDictOffset

	domainDict := make([]domainDictEntry, len(docs))
	for i, d := range docs {
		domainDict[i] = domainDictEntry{Domain: d.Domain, Ordinal: i}
	}
	domainDictOffset := termDictEnd
	domainDictBytes, err := json.Marshal(domainDict)
	if err != nil {
		return Info{}, fmt.Errorf("marshaling domain dictionary: %w", err)
	}
	if _, err := f.Write(domainDictBytes); err != nil {
		return Info{}, fmt.Errorf("writing domain dictionary: %w", err)
	}
	domainDictEnd, _ := f.Seek(0, 1)
	domainDictSize := domainDictEnd - domainDictOffset

	storedOffset := domainDictEnd
	storedBytes, err := json.Marshal(docs)
	if err != nil {
		return Info{}, fmt.Errorf("marshaling stored documents: %w", err)
	}
	if _, err := f.Write(storedBytes); err != nil {
		return Info{}, fmt.Errorf("writing stored documents: %w", err)
	}
	storedEnd, _ := f.Seek(0, 1)
	storedSize := storedEnd - storedOffset

	checksum := crc32.ChecksumIEEE(append(append([]byte{}, termDictBytes...), domainDictBytes...))
	footer := make([]byte, FooterSize)
	binary.LittleEndian.PutUint32(footer[0:4], FooterMagic)
	binary.LittleEndian.PutUint32(footer[4:8], checksum)
	if _, err := f.Write(footer); err != nil {
		return Info{}, fmt.Errorf("writing footer: %w", err)
	}

	createdAt := time.Now().Unix()
	header := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(header[0:4], MagicBytes)
	binary.LittleEndian.PutUint32(header[4:8], FormatVersion)
	binary.LittleEndian.PutUint32(header[8:12], uint32(len(docs)))
	binary.LittleEndian.PutUint32(header[12:16], uint32(len(terms)))
	binary.LittleEndian.PutUint64(header[16:24], uint64(createdAt))
	binary.LittleEndian.PutUint64(header[24:32], uint64(postOffset))
	binary.LittleEndian.PutUint64(header[32:40], uint64(postSize))
	binary.LittleEndian.PutUint64(header[40:48], uint64(termDictOffset))
	binary.LittleEndian.PutUint64(header[48:56], uint64(termDictSize))
	binary.LittleEndian.PutUint64(header[56:64], uint64(domainDictOffset))
	binary.LittleEndian.PutUint64(header[64:72], uint64(domainDictSize))
	binary.LittleEndian.PutUint64(header[72:80], uint64(storedOffset))
	binary.LittleEndian.PutUint64(header[80:88], uint64(storedSize))
	if _, err := f.WriteAt(header, 0); err != nil {
		return Info{}, fmt.Errorf("writing header: %w", err)
	}

	if err := f.Sync(); err != nil {
		return Info{}, fmt.Errorf("syncing segment file: %w", err)
	}
	if err := f.Close(); err != nil {
		return Info{}, fmt.Errorf("closing segment file: %w", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return Info{}, fmt.Errorf("renaming segment file: %w", err)
	}

	return Info{ID: name, DocCount: len(docs), TermCount: len(terms), CreatedAt: createdAt}, nil
}
