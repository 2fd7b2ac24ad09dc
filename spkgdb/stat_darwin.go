package spkgdb

import (
	"io/fs"
	"syscall"
)

type ownerInfo struct {
	uid, gid int
}

func statUID(fi fs.FileInfo) (ownerInfo, bool) {
	st, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		return ownerInfo{}, false
	}
	return ownerInfo{uid: int(st.Uid), gid: int(st.Gid)}, true
}
