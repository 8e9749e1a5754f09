package sbtree

import "fmt"

// BucketPointer locates the root bucket of a tree inside its file.
type BucketPointer struct {
	PageIndex  int64 `json:"pageIndex"`
	PageOffset int32 `json:"pageOffset"`
}

// CollectionPointer identifies a tree backed collection.
type CollectionPointer struct {
	FileID int64         `json:"fileId"`
	Root   BucketPointer `json:"root"`
}

var InvalidPointer = CollectionPointer{
	FileID: -1,
	Root:   BucketPointer{PageIndex: -1, PageOffset: -1},
}

func (p CollectionPointer) IsValid() bool {
	return p.FileID >= 0 && p.Root.PageIndex >= 0 && p.Root.PageOffset >= 0
}

func (p CollectionPointer) String() string {
	return fmt.Sprintf("%d:%d:%d", p.FileID, p.Root.PageIndex, p.Root.PageOffset)
}
