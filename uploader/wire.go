package uploader

import (
	"io"

	"github.com/tinylib/msgp/msgp"

	"github.com/darinkishore/hurry/unit"
)

// submission is one save-engine hand-off crossing the loopback IPC boundary
// between the build-wrapper process and the daemonized worker (spec.md
// §4.6). It is framed with msgp rather than JSON because it carries raw
// blob bytes alongside the SavedUnit metadata and the wire size of many
// small, frequent local IPC calls matters more here than human
// readability — msgp's binary framing with a Writer/Reader pair streams
// without an intermediate buffer, which jsoniter's byte-oriented API does
// not offer.
type submission struct {
	Tenant string
	Unit   unit.SavedUnit
	Blobs  map[string][]byte
}

func writeFileEntry(w *msgp.Writer, f unit.FileEntry) error {
	if err := w.WriteArrayHeader(4); err != nil {
		return err
	}
	if err := w.WriteString(f.RelativePath); err != nil {
		return err
	}
	if err := w.WriteString(f.BlobKey); err != nil {
		return err
	}
	if err := w.WriteInt64(f.MtimeNS); err != nil {
		return err
	}
	return w.WriteBool(f.ExecutableBit)
}

func readFileEntry(r *msgp.Reader) (unit.FileEntry, error) {
	var f unit.FileEntry
	if _, err := r.ReadArrayHeader(); err != nil {
		return f, err
	}
	var err error
	if f.RelativePath, err = r.ReadString(); err != nil {
		return f, err
	}
	if f.BlobKey, err = r.ReadString(); err != nil {
		return f, err
	}
	if f.MtimeNS, err = r.ReadInt64(); err != nil {
		return f, err
	}
	if f.ExecutableBit, err = r.ReadBool(); err != nil {
		return f, err
	}
	return f, nil
}

func writeSentinelEntry(w *msgp.Writer, s unit.SentinelEntry) error {
	if err := w.WriteArrayHeader(2); err != nil {
		return err
	}
	if err := w.WriteString(s.RelativePath); err != nil {
		return err
	}
	return w.WriteInt64(s.MtimeNS)
}

func readSentinelEntry(r *msgp.Reader) (unit.SentinelEntry, error) {
	var s unit.SentinelEntry
	if _, err := r.ReadArrayHeader(); err != nil {
		return s, err
	}
	var err error
	if s.RelativePath, err = r.ReadString(); err != nil {
		return s, err
	}
	if s.MtimeNS, err = r.ReadInt64(); err != nil {
		return s, err
	}
	return s, nil
}

func writeSynthesizedEntry(w *msgp.Writer, y unit.SynthesizedEntry) error {
	if err := w.WriteArrayHeader(3); err != nil {
		return err
	}
	if err := w.WriteString(y.RelativePath); err != nil {
		return err
	}
	if err := w.WriteString(y.ContentTemplate); err != nil {
		return err
	}
	return w.WriteInt64(y.MtimeNS)
}

func readSynthesizedEntry(r *msgp.Reader) (unit.SynthesizedEntry, error) {
	var y unit.SynthesizedEntry
	if _, err := r.ReadArrayHeader(); err != nil {
		return y, err
	}
	var err error
	if y.RelativePath, err = r.ReadString(); err != nil {
		return y, err
	}
	if y.ContentTemplate, err = r.ReadString(); err != nil {
		return y, err
	}
	if y.MtimeNS, err = r.ReadInt64(); err != nil {
		return y, err
	}
	return y, nil
}

// encodeSubmission writes s to w in msgp's streaming binary format.
func encodeSubmission(w io.Writer, s submission) error {
	mw := msgp.NewWriter(w)

	if err := mw.WriteMapHeader(3); err != nil {
		return err
	}
	if err := mw.WriteString("tenant"); err != nil {
		return err
	}
	if err := mw.WriteString(s.Tenant); err != nil {
		return err
	}

	if err := mw.WriteString("unit"); err != nil {
		return err
	}
	if err := writeSavedUnit(mw, s.Unit); err != nil {
		return err
	}

	if err := mw.WriteString("blobs"); err != nil {
		return err
	}
	if err := mw.WriteMapHeader(uint32(len(s.Blobs))); err != nil {
		return err
	}
	for key, data := range s.Blobs {
		if err := mw.WriteString(key); err != nil {
			return err
		}
		if err := mw.WriteBytes(data); err != nil {
			return err
		}
	}
	return mw.Flush()
}

func writeSavedUnit(w *msgp.Writer, su unit.SavedUnit) error {
	hasLibc := su.HostLibc != nil
	nFields := 6
	if err := w.WriteMapHeader(uint32(nFields)); err != nil {
		return err
	}

	if err := w.WriteString("unit_hash"); err != nil {
		return err
	}
	if err := w.WriteString(su.UnitHash); err != nil {
		return err
	}

	if err := w.WriteString("resolved_target"); err != nil {
		return err
	}
	if err := w.WriteString(su.ResolvedTarget); err != nil {
		return err
	}

	if err := w.WriteString("host_libc"); err != nil {
		return err
	}
	if hasLibc {
		if err := w.WriteArrayHeader(2); err != nil {
			return err
		}
		if err := w.WriteString(su.HostLibc.Family); err != nil {
			return err
		}
		if err := w.WriteString(su.HostLibc.Version); err != nil {
			return err
		}
	} else {
		if err := w.WriteNil(); err != nil {
			return err
		}
	}

	if err := w.WriteString("files"); err != nil {
		return err
	}
	if err := w.WriteArrayHeader(uint32(len(su.Files))); err != nil {
		return err
	}
	for _, f := range su.Files {
		if err := writeFileEntry(w, f); err != nil {
			return err
		}
	}

	if err := w.WriteString("sentinels"); err != nil {
		return err
	}
	if err := w.WriteArrayHeader(uint32(len(su.Sentinels))); err != nil {
		return err
	}
	for _, s := range su.Sentinels {
		if err := writeSentinelEntry(w, s); err != nil {
			return err
		}
	}

	if err := w.WriteString("synthesized"); err != nil {
		return err
	}
	if err := w.WriteArrayHeader(uint32(len(su.Synthesized))); err != nil {
		return err
	}
	for _, y := range su.Synthesized {
		if err := writeSynthesizedEntry(w, y); err != nil {
			return err
		}
	}

	return nil
}

// decodeSubmission reads a submission previously written by
// encodeSubmission.
func decodeSubmission(r io.Reader) (submission, error) {
	var s submission
	mr := msgp.NewReader(r)

	n, err := mr.ReadMapHeader()
	if err != nil {
		return s, err
	}
	s.Blobs = make(map[string][]byte)
	for i := uint32(0); i < n; i++ {
		key, err := mr.ReadString()
		if err != nil {
			return s, err
		}
		switch key {
		case "tenant":
			if s.Tenant, err = mr.ReadString(); err != nil {
				return s, err
			}
		case "unit":
			if s.Unit, err = readSavedUnit(mr); err != nil {
				return s, err
			}
		case "blobs":
			bn, err := mr.ReadMapHeader()
			if err != nil {
				return s, err
			}
			for j := uint32(0); j < bn; j++ {
				k, err := mr.ReadString()
				if err != nil {
					return s, err
				}
				v, err := mr.ReadBytes(nil)
				if err != nil {
					return s, err
				}
				s.Blobs[k] = v
			}
		}
	}
	return s, nil
}

func readSavedUnit(r *msgp.Reader) (unit.SavedUnit, error) {
	var su unit.SavedUnit
	n, err := r.ReadMapHeader()
	if err != nil {
		return su, err
	}
	for i := uint32(0); i < n; i++ {
		key, err := r.ReadString()
		if err != nil {
			return su, err
		}
		switch key {
		case "unit_hash":
			if su.UnitHash, err = r.ReadString(); err != nil {
				return su, err
			}
		case "resolved_target":
			if su.ResolvedTarget, err = r.ReadString(); err != nil {
				return su, err
			}
		case "host_libc":
			if r.IsNil() {
				if err := r.ReadNil(); err != nil {
					return su, err
				}
				continue
			}
			if _, err := r.ReadArrayHeader(); err != nil {
				return su, err
			}
			libc := &unit.HostLibc{}
			if libc.Family, err = r.ReadString(); err != nil {
				return su, err
			}
			if libc.Version, err = r.ReadString(); err != nil {
				return su, err
			}
			su.HostLibc = libc
		case "files":
			fn, err := r.ReadArrayHeader()
			if err != nil {
				return su, err
			}
			su.Files = make([]unit.FileEntry, 0, fn)
			for j := uint32(0); j < fn; j++ {
				f, err := readFileEntry(r)
				if err != nil {
					return su, err
				}
				su.Files = append(su.Files, f)
			}
		case "sentinels":
			sn, err := r.ReadArrayHeader()
			if err != nil {
				return su, err
			}
			su.Sentinels = make([]unit.SentinelEntry, 0, sn)
			for j := uint32(0); j < sn; j++ {
				s, err := readSentinelEntry(r)
				if err != nil {
					return su, err
				}
				su.Sentinels = append(su.Sentinels, s)
			}
		case "synthesized":
			yn, err := r.ReadArrayHeader()
			if err != nil {
				return su, err
			}
			su.Synthesized = make([]unit.SynthesizedEntry, 0, yn)
			for j := uint32(0); j < yn; j++ {
				y, err := readSynthesizedEntry(r)
				if err != nil {
					return su, err
				}
				su.Synthesized = append(su.Synthesized, y)
			}
		}
	}
	return su, nil
}
