package service

import (
	"github.com/fulldump/ridbagdb/rid"
	"github.com/fulldump/ridbagdb/ridbag"
)

type Document struct {
	RID     rid.RID                `json:"rid"`
	Version int64                  `json:"version"`
	Fields  map[string]interface{} `json:"fields"`
	Bags    map[string]*Bag        `json:"bags"`
}

type Bag struct {
	Size     int             `json:"size"`
	Embedded bool            `json:"embedded"`
	Pointer  *ridbag.Pointer `json:"pointer,omitempty"`
}

type CreateDocumentInput struct {
	Cluster int32                  `json:"cluster"`
	Fields  map[string]interface{} `json:"fields"`
	Links   map[string][]rid.RID   `json:"links"`
}

type ListQuery struct {
	Resolve bool                   `json:"resolve"`
	Filter  map[string]interface{} `json:"filter"`
	Skip    int64                  `json:"skip"`
	Limit   int64                  `json:"limit"`
}

// Link is one entry of a bag. Fields is only filled when the query resolves
// the references, Missing marks a reference to a deleted document.
type Link struct {
	RID     rid.RID                `json:"rid"`
	Fields  map[string]interface{} `json:"fields,omitempty"`
	Missing bool                   `json:"missing,omitzero"`
}

type Stats struct {
	Status     string `json:"status"`
	Documents  int    `json:"documents"`
	Trees      int    `json:"trees"`
	CacheSize  int    `json:"cache_size"`
	Evictable  int    `json:"evictable"`
	Thresholds struct {
		EmbeddedToTree int `json:"embedded_to_tree"`
		TreeToEmbedded int `json:"tree_to_embedded"`
	} `json:"thresholds"`
}
