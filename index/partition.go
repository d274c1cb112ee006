package index

import (
	"sync"

	"github.com/blevesearch/bleve/v2"
)

// partition wraps one bleve index handle with the single-writer discipline
// §4.3 requires: multiple readers may search concurrently, but only one
// mutation (index/delete/commit) runs at a time per partition.
type partition struct {
	name   string
	bucket string

	writeMu sync.Mutex
	idx     bleve.Index
}

func openPartition(name, bucket string, customFields []CustomFieldConfig, basePath string) (*partition, error) {
	m := BuildIndexMapping(customFields)
	var idx bleve.Index
	var err error
	if basePath == "" {
		idx, err = bleve.NewMemOnly(m)
	} else {
		idx, err = bleve.New(basePath+"/"+name, m)
	}
	if err != nil {
		return nil, err
	}
	return &partition{name: name, bucket: bucket, idx: idx}, nil
}

func (p *partition) indexBatch(docs map[string]map[string]interface{}) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	batch := p.idx.NewBatch()
	for id, doc := range docs {
		if err := batch.Index(id, doc); err != nil {
			return err
		}
	}
	return p.idx.Batch(batch)
}

func (p *partition) deleteBatch(ids []string) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	batch := p.idx.NewBatch()
	for _, id := range ids {
		batch.Delete(id)
	}
	return p.idx.Batch(batch)
}

func (p *partition) close() error {
	return p.idx.Close()
}
