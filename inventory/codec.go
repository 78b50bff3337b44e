// Copyright 2023 The InventoryDB Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or
// implied. See the License for the specific language governing
// permissions and limitations under the License.

package inventory

import "encoding/binary"

// subFolderEntry is the packed value a parent folder keeps per child in
// its sub_folders super column: just enough to render a folder listing
// without fetching the child row.
type subFolderEntry struct {
	Name string
	Type int16
}

const subFolderEntryVersion = 1

// maximum stored name length; longer names are truncated on encode
const subFolderNameMax = 255

// encode packs the entry as [ver:1][name_len:1][name:var][type:int16 BE].
func (e subFolderEntry) encode() []byte {
	name := []byte(e.Name)
	if len(name) > subFolderNameMax {
		name = name[:subFolderNameMax]
	}
	ret := make([]byte, 2+len(name)+2)
	ret[0] = subFolderEntryVersion
	ret[1] = byte(len(name))
	copy(ret[2:], name)
	binary.BigEndian.PutUint16(ret[2+len(name):], uint16(e.Type))
	return ret
}

// decodeSubFolderEntry unpacks an index entry. Unknown version tags and
// short values decode to the zero entry rather than failing; the index
// is advisory and a bad entry must not make a folder unreadable.
func decodeSubFolderEntry(data []byte) subFolderEntry {
	if len(data) < 2 || data[0] != subFolderEntryVersion {
		return subFolderEntry{}
	}
	nameLen := int(data[1])
	if len(data) < 2+nameLen+2 {
		return subFolderEntry{}
	}
	return subFolderEntry{
		Name: string(data[2 : 2+nameLen]),
		Type: int16(binary.BigEndian.Uint16(data[2+nameLen:])),
	}
}
