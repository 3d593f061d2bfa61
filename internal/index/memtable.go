package index

import (
	"sort"
	"sync"

	"github.com/domainsearch/engine/internal/domain"
)

// memtable is the in-memory write buffer for C3 (Index Writer). It
// generalizes the teacher's MemoryIndex (internal/indexer/index/memory_index.go)
// from a title/body full-text index to this domain's token postings plus a
// domain-exact stored-document table, and adds delete tracking so a single
// commit batch can delete-then-add the same domain idempotently.
type memtable struct {
	mu         sync.RWMutex
	postings   map[string]map[string]*Posting // term -> domain -> posting
	docs       map[string]StoredDoc           // domain -> stored doc
	tombstones map[string]struct{}            // domains deleted in this batch
	tokenSum   int64                          // sum of len(doc.Tokens) across live docs, for avg doc length
	size       int64                          // approximate RAM footprint in bytes
}

func newMemtable() *memtable {
	return &memtable{
		postings:   make(map[string]map[string]*Posting),
		docs:       make(map[string]StoredDoc),
		tombstones: make(map[string]struct{}),
	}
}

// AddDocument inserts or replaces a document. A prior Delete of the same
// domain earlier in the same batch is cleared, matching the delta
// applier's delete-before-add contract.
func (m *memtable) AddDocument(doc domain.Document) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, existed := m.docs[doc.Domain]; existed {
		m.removeLocked(doc.Domain)
	}
	delete(m.tombstones, doc.Domain)

	stored := storedDocFromDocument(doc)
	m.docs[doc.Domain] = stored
	m.tokenSum += int64(len(doc.Tokens))

	seen := make(map[string]int, len(doc.Tokens))
	for _, tok := range doc.Tokens {
		seen[tok]++
	}
	for term, freq := range seen {
		bucket, ok := m.postings[term]
		if !ok {
			bucket = make(map[string]*Posting)
			m.postings[term] = bucket
		}
		bucket[doc.Domain] = &Posting{Domain: doc.Domain, Freq: freq}
		m.size += int64(len(term) + len(doc.Domain) + 24)
	}
	m.size += int64(len(doc.Domain)*2 + len(doc.Label) + len(doc.TLD) + 32)
}

// Delete marks domain as removed. If the domain was added earlier in this
// same batch, the addition is undone so the memtable never flushes a
// tombstoned document.
func (m *memtable) Delete(domainName string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, existed := m.docs[domainName]; existed {
		m.removeLocked(domainName)
	}
	m.tombstones[domainName] = struct{}{}
}

func (m *memtable) removeLocked(domainName string) {
	stored, ok := m.docs[domainName]
	if !ok {
		return
	}
	for _, tok := range stored.Tokens {
		if bucket, ok := m.postings[tok]; ok {
			delete(bucket, domainName)
			if len(bucket) == 0 {
				delete(m.postings, tok)
			}
		}
	}
	m.tokenSum -= int64(len(stored.Tokens))
	delete(m.docs, domainName)
}

// Lookup returns the stored document for an exact domain match.
func (m *memtable) Lookup(domainName string) (StoredDoc, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.docs[domainName]
	return doc, ok
}

// Search returns the posting list for term, sorted by domain.
func (m *memtable) Search(term string) PostingList {
	m.mu.RLock()
	defer m.mu.RUnlock()
	bucket, ok := m.postings[term]
	if !ok {
		return nil
	}
	out := make(PostingList, 0, len(bucket))
	for _, p := range bucket {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Domain < out[j].Domain })
	return out
}

// Snapshot returns every term entry and stored document currently
// buffered, both sorted, ready for a segment.Writer. It does not clear the
// memtable; callers swap it out under the engine's write lock instead.
func (m *memtable) Snapshot() ([]TermEntry, []StoredDoc, []string) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries := make([]TermEntry, 0, len(m.postings))
	for term, bucket := range m.postings {
		postings := make(PostingList, 0, len(bucket))
		for _, p := range bucket {
			postings = append(postings, *p)
		}
		sort.Slice(postings, func(i, j int) bool { return postings[i].Domain < postings[j].Domain })
		entries = append(entries, TermEntry{Term: term, Postings: postings})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Term < entries[j].Term })

	docs := make([]StoredDoc, 0, len(m.docs))
	for _, d := range m.docs {
		docs = append(docs, d)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Domain < docs[j].Domain })

	tombstones := make([]string, 0, len(m.tombstones))
	for domainName := range m.tombstones {
		tombstones = append(tombstones, domainName)
	}
	sort.Strings(tombstones)

	return entries, docs, tombstones
}

func (m *memtable) DocCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docs)
}

func (m *memtable) AvgDocLength() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.docs) == 0 {
		return 0
	}
	return float64(m.tokenSum) / float64(len(m.docs))
}

// Size reports the approximate RAM footprint in bytes, the same
// accounting role as the teacher's MemoryIndex.Size().
func (m *memtable) Size() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.size
}

func (m *memtable) Empty() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docs) == 0 && len(m.tombstones) == 0
}
