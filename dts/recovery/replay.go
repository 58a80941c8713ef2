package recovery

// Submitter resubmits one recovered entry, returning nil on success.
// The caller (cmd/dtsq) supplies the actual RPC submission logic.
type Submitter func(Entry) error

// Replay re-reads <dir>/Recover, resubmits each entry whose host
// matches localHost (unless allHosts is set, per spec.md §4.9
// "submissions from other hosts are skipped unless --all-hosts is
// given"), and atomically rewrites Recover with only the entries that
// still failed. It returns the entries that were skipped (wrong host)
// plus those resubmitted but still failing — together the new
// contents of Recover.
func Replay(dir, localHost string, allHosts bool, submit Submitter) ([]Entry, error) {
	entries, err := LoadRecover(dir)
	if err != nil {
		return nil, err
	}

	var remaining []Entry
	for _, e := range entries {
		if !allHosts && e.Host != localHost {
			remaining = append(remaining, e)
			continue
		}
		if err := submit(e); err != nil {
			remaining = append(remaining, e)
		}
	}

	if err := RewriteRecover(dir, remaining); err != nil {
		return nil, err
	}
	return remaining, nil
}
