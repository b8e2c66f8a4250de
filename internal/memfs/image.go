package memfs

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

// A root image is a bbolt database with two buckets. "inodes" maps the
// big-endian inode number to a JSON inodeRecord; "meta" holds the next
// inode number and the device number.
var (
	inodesBucket = []byte("inodes")
	metaBucket   = []byte("meta")

	nextKey = []byte("next")
	devKey  = []byte("dev")
)

type inodeRecord struct {
	Dir       bool           `json:"dir"`
	Meta      meta           `json:"meta"`
	Data      []byte         `json:"data,omitempty"`
	Size      int64          `json:"size,omitempty"`
	LinkCount int            `json:"links,omitempty"`
	Parent    int            `json:"parent,omitempty"`
	Name      string         `json:"name,omitempty"`
	Entries   map[string]int `json:"entries,omitempty"`
}

func inodeKey(inode int) []byte {
	return binary.BigEndian.AppendUint64(nil, uint64(inode))
}

// Save writes the filesystem to a new or existing image at path, replacing
// whatever the image held. Open handles are not recorded.
func (fs *Filesystem) Save(path string) error {
	db, err := bolt.Open(path, 0o644, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return fmt.Errorf("opening image %s: %w", path, err)
	}
	defer db.Close()

	fs.mu.Lock()
	defer fs.mu.Unlock()

	return db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{inodesBucket, metaBucket} {
			if tx.Bucket(name) != nil {
				if err := tx.DeleteBucket(name); err != nil {
					return err
				}
			}
		}
		inodes, err := tx.CreateBucket(inodesBucket)
		if err != nil {
			return err
		}
		metas, err := tx.CreateBucket(metaBucket)
		if err != nil {
			return err
		}

		for inode, obj := range fs.state.objects {
			var rec inodeRecord
			switch obj := obj.(type) {
			case *backingFile:
				if obj.linkCount == 0 {
					continue
				}
				rec = inodeRecord{Meta: obj.meta, Data: obj.data, Size: obj.size, LinkCount: obj.linkCount}
			case *backingDir:
				rec = inodeRecord{Dir: true, Meta: obj.meta, Parent: obj.parent, Name: obj.name, Entries: obj.entries}
			}
			bytes, err := json.Marshal(rec)
			if err != nil {
				return err
			}
			if err := inodes.Put(inodeKey(inode), bytes); err != nil {
				return err
			}
		}

		if err := metas.Put(nextKey, binary.BigEndian.AppendUint64(nil, uint64(fs.state.next))); err != nil {
			return err
		}
		return metas.Put(devKey, binary.BigEndian.AppendUint64(nil, fs.dev))
	})
}

// Load reads an image written by Save.
func Load(path string, opts ...Option) (*Filesystem, error) {
	db, err := bolt.Open(path, 0o644, &bolt.Options{Timeout: time.Second, ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("opening image %s: %w", path, err)
	}
	defer db.Close()

	fs := New(opts...)
	state := &filesystemState{objects: make(map[int]any)}

	err = db.View(func(tx *bolt.Tx) error {
		inodes := tx.Bucket(inodesBucket)
		metas := tx.Bucket(metaBucket)
		if inodes == nil || metas == nil {
			return fmt.Errorf("not a root image")
		}

		if v := metas.Get(nextKey); len(v) == 8 {
			state.next = int(binary.BigEndian.Uint64(v))
		}
		if v := metas.Get(devKey); len(v) == 8 {
			fs.dev = binary.BigEndian.Uint64(v)
		}

		return inodes.ForEach(func(k, v []byte) error {
			if len(k) != 8 {
				return fmt.Errorf("bad inode key %x", k)
			}
			inode := int(binary.BigEndian.Uint64(k))
			var rec inodeRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("inode %d: %w", inode, err)
			}
			if rec.Dir {
				entries := rec.Entries
				if entries == nil {
					entries = make(map[string]int)
				}
				state.objects[inode] = &backingDir{
					inode:   inode,
					parent:  rec.Parent,
					name:    rec.Name,
					meta:    rec.Meta,
					entries: entries,
				}
			} else {
				state.objects[inode] = &backingFile{
					inode:     inode,
					meta:      rec.Meta,
					data:      rec.Data,
					size:      rec.Size,
					linkCount: rec.LinkCount,
				}
			}
			if inode >= state.next {
				state.next = inode + 1
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("loading image %s: %w", path, err)
	}

	if _, ok := state.getDir(RootInode); !ok {
		return nil, fmt.Errorf("loading image %s: missing root directory", path)
	}
	fs.state = state
	return fs, nil
}
