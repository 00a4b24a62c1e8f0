package store

import (
	"fmt"
	"strings"
)

// Key layout. Message log keys sort by server timestamp with the message
// id breaking ties, so a prefix scan yields thread order and a mutation
// can rewrite its entry in place without moving it.
//
//	thread:<threadID>:msg:<%020d ts>-<msgID>   -> current message JSON
//	version:msg:<msgID>:<%020d ts>-<%06d seq>  -> stored versions (edit history)
//	latest:msg:<msgID>                         -> current message JSON by id
//	thread:<threadID>:meta                     -> thread record JSON
//	thread:<threadID>:read:<userID>            -> read marker (ns, ascii)

func msgKey(threadID string, ts int64, msgID string) ([]byte, error) {
	if strings.ContainsRune(threadID, ':') {
		return nil, fmt.Errorf("invalid thread id: %q", threadID)
	}
	if msgID == "" || strings.ContainsRune(msgID, ':') {
		return nil, fmt.Errorf("invalid message id: %q", msgID)
	}
	return []byte(fmt.Sprintf("thread:%s:msg:%020d-%s", threadID, ts, msgID)), nil
}

func msgPrefix(threadID string) []byte {
	return []byte("thread:" + threadID + ":msg:")
}

func versionKey(msgID string, ts int64, seq uint64) ([]byte, error) {
	if strings.ContainsRune(msgID, ':') {
		return nil, fmt.Errorf("invalid message id: %q", msgID)
	}
	return []byte(fmt.Sprintf("version:msg:%s:%020d-%06d", msgID, ts, seq)), nil
}

func versionPrefix(msgID string) []byte {
	return []byte("version:msg:" + msgID + ":")
}

func latestKey(msgID string) []byte {
	return []byte("latest:msg:" + msgID)
}

func threadMetaKey(threadID string) []byte {
	return []byte("thread:" + threadID + ":meta")
}

func readMarkerKey(threadID, userID string) []byte {
	return []byte("thread:" + threadID + ":read:" + userID)
}

func readMarkerPrefix(threadID string) []byte {
	return []byte("thread:" + threadID + ":read:")
}
