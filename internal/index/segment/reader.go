package segment

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"os"
	"sort"

	domainerrors "github.com/domainsearch/engine/pkg/errors"
)

// Reader provides read-only access to a segment file: term lookups, exact
// domain lookups by ordinal, and full scans for the merge policy.
// Grounded on the teacher's internal/indexer/segment/reader.go (open,
// validate magic, read dictionary once, binary-search it on every Search
// call), extended with the domain dictionary and stored-doc table this
// format adds.
type Reader struct {
	file       *os.File
	header     Header
	termDict   []termDictEntry
	domainDict []domainDictEntry
}

// OpenReader opens path, validates its header and footer checksum, and
// loads both dictionaries into memory (they are small relative to the
// postings and stored-doc blobs, which stay on disk and are read on
// demand).
func OpenReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening segment file: %w", err)
	}

	headerBytes := make([]byte, HeaderSize)
	if _, err := f.ReadAt(headerBytes, 0); err != nil {
		f.Close()
		return nil, fmt.Errorf("reading segment header: %w", err)
	}
	magic := binary.LittleEndian.Uint32(headerBytes[0:4])
	if magic != MagicBytes {
		f.Close()
		return nil, fmt.Errorf("%w: bad magic bytes %x", domainerrors.ErrCorruptSegment, magic)
	}
	header := Header{
		Magic:            magic,
		Version:          binary.LittleEndian.Uint32(headerBytes[4:8]),
		DocCount:         binary.LittleEndian.Uint32(headerBytes[8:12]),
		TermCount:        binary.LittleEndian.Uint32(headerBytes[12:16]),
		CreatedAt:         int64(binary.LittleEndian.Uint64(headerBytes[16:24])),
		PostOffset:       int64(binary.LittleEndian.Uint64(headerBytes[24:32])),
		PostSize:         int64(binary.LittleEndian.Uint64(headerBytes[32:40])),
		TermDictOffset:   int64(binary.LittleEndian.Uint64(headerBytes[40:48])),
		TermDictSize:     int64(binary.LittleEndian.Uint64(headerBytes[48:56])),
		DomainDictOffset: int64(binary.LittleEndian.Uint64(headerBytes[56:64])),
		DomainDictSize:   int64(binary.LittleEndian.Uint64(headerBytes[64:72])),
		StoredOffset:     int64(binary.LittleEndian.Uint64(headerBytes[72:80])),
		StoredSize:       int64(binary.LittleEndian.Uint64(headerBytes[80:88])),
	}

	termDictBytes := make([]byte, header.TermDictSize)
	if _, err := f.ReadAt(termDictBytes, header.TermDictOffset); err != nil {
		f.Close()
		return nil, fmt.Errorf("reading term dictionary: %w", err)
	}
	domainDictBytes := make([]byte, header.DomainDictSize)
	if _, err := f.ReadAt(domainDictBytes, header.DomainDictOffset); err != nil {
		f.Close()
		return nil, fmt.Errorf("reading domain dictionary: %w", err)
	}

	footer := make([]byte, FooterSize)
	if _, err := f.ReadAt(footer, header.StoredOffset+header.StoredSize); err != nil {
		f.Close()
		return nil, fmt.Errorf("reading segment footer: %w", err)
	}
	footerMagic := binary.LittleEndian.Uint32(footer[0:4])
	wantChecksum := binary.LittleEndian.Uint32(footer[4:8])
	gotChecksum := crc32.ChecksumIEEE(append(append([]byte{}, termDictBytes...), domainDictBytes...))
	if footerMagic != FooterMagic || wantChecksum != gotChecksum {
		f.Close()
		return nil, fmt.Errorf("%w: checksum mismatch", domainerrors.ErrCorruptSegment)
	}

	var termDict []termDictEntry
	if err := json.Unmarshal(termDictBytes, &termDict); err != nil {
		f.Close()
		return nil, fmt.Errorf("parsing term dictionary: %w", err)
	}
	var domainDict []domainDictEntry
	if err := json.Unmarshal(domainDictBytes, &domainDict); err != nil {
		f.Close()
		return nil, fmt.Errorf("parsing domain dictionary: %w", err)
	}

	return &Reader{file: f, header: header, termDict: termDict, domainDict: domainDict}, nil
}

// Search returns the posting list for term, or nil if the term is absent.
func (r *Reader) Search(term string) ([]Posting, error) {
	idx := sort.Search(len(r.termDict), func(i int) bool { return r.termDict[i].Term >= term })
	if idx >= len(r.termDict) || r.termDict[idx].Term != term {
		return nil, nil
	}
	entry := r.termDict[idx]
	data := make([]byte, entry.PostLen)
	if _, err := r.file.ReadAt(data, r.header.PostOffset+entry.PostOffset); err != nil {
		return nil, fmt.Errorf("reading postings for term %q: %w", term, err)
	}
	var postings []Posting
	if err := json.Unmarshal(data, &postings); err != nil {
		return nil, fmt.Errorf("parsing postings for term %q: %w", term, err)
	}
	return postings, nil
}

// OrdinalOf returns the per-segment ordinal of domainName, for exact
// lookups and for translating a delete into a tombstone bitmap bit.
func (r *Reader) OrdinalOf(domainName string) (int, bool) {
	idx := sort.Search(len(r.domainDict), func(i int) bool { return r.domainDict[i].Domain >= domainName })
	if idx >= len(r.domainDict) || r.domainDict[idx].Domain != domainName {
		return 0, false
	}
	return r.domainDict[idx].Ordinal, true
}

// DocAt reads the stored document at ordinal from the on-disk stored-doc
// table. Each call decodes the whole table and returns one entry of it.
func (r *Reader) DocAt(ordinal int) (Doc, error) {
	docs, err := r.readStoredDocs()
	if err != nil {
		return Doc{}, err
	}
	if ordinal < 0 || ordinal >= len(docs) {
		return Doc{}, fmt.Errorf("ordinal %d out of range", ordinal)
	}
	return docs[ordinal], nil
}

// Lookup returns the stored document for an exact domain match.
func (r *Reader) Lookup(domainName string) (Doc, bool, error) {
	ordinal, ok := r.OrdinalOf(domainName)
	if !ok {
		return Doc{}, false, nil
	}
	doc, err := r.DocAt(ordinal)
	if err != nil {
		return Doc{}, false, err
	}
	return doc, true, nil
}

// AllDocs reads every stored document, ordered by ordinal. Used by the
// merge policy; not suitable for the query path at full index scale.
func (r *Reader) AllDocs() ([]Doc, error) {
	return r.readStoredDocs()
}

// AllTerms reads every term's full posting list, in dictionary order.
// Used by the merge policy.
func (r *Reader) AllTerms() ([]TermEntry, error) {
	entries := make([]TermEntry, 0, len(r.termDict))
	for _, e := range r.termDict {
		postings, err := r.Search(e.Term)
		if err != nil {
			return nil, err
		}
		entries = append(entries, TermEntry{Term: e.Term, Postings: postings})
	}
	return entries, nil
}

func (r *Reader) readStoredDocs() ([]Doc, error) {
	data := make([]byte, r.header.StoredSize)
	if _, err := r.file.ReadAt(data, r.header.StoredOffset); err != nil {
		return nil, fmt.Errorf("reading stored documents: %w", err)
	}
	var docs []Doc
	if err := json.Unmarshal(data, &docs); err != nil {
		return nil, fmt.Errorf("parsing stored documents: %w", err)
	}
	return docs, nil
}

// DocCount returns the number of documents recorded in this segment's
// header (including any later tombstoned by a sidecar bitmap).
func (r *Reader) DocCount() int { return int(r.header.DocCount) }

// TermCount returns the number of distinct terms in this segment.
func (r *Reader) TermCount() int { return int(r.header.TermCount) }

// Size returns the on-disk size of the segment file in bytes, for /stats'
// index_size_bytes.
func (r *Reader) Size() (int64, error) {
	info, err := r.file.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat segment file: %w", err)
	}
	return info.Size(), nil
}

// Close releases the underlying file handle.
func (r *Reader) Close() error { return r.file.Close() }
