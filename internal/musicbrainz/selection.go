package musicbrainz

import "sort"

// selectRelease implements the §4.2 release-selection ordering, in the style
// of dab-downloader's selectBestRelease but reproducing the spec's exact,
// deterministic tie-break chain rather than a weighted heuristic score:
//
//  1. preferredReleaseID exact match
//  2. preferredReleaseGroupID match with trackCount == fileCount
//  3. preferredReleaseGroupID match
//  4. country priority list, first hit wins
//  5. earliest releaseDate
//
// Final tie-break: lexicographically smallest releaseID.
func selectRelease(releases []wireRelease, preferredReleaseID, preferredReleaseGroupID string, fileCount int, countryPriority []string) *wireRelease {
	if len(releases) == 0 {
		return nil
	}

	if preferredReleaseID != "" {
		for i := range releases {
			if releases[i].ID == preferredReleaseID {
				return &releases[i]
			}
		}
	}

	pool := releases
	if preferredReleaseGroupID != "" {
		var inGroup []wireRelease
		for _, r := range releases {
			if r.ReleaseGroup.ID == preferredReleaseGroupID {
				inGroup = append(inGroup, r)
			}
		}
		if len(inGroup) > 0 {
			if fileCount > 0 {
				var exactCount []wireRelease
				for _, r := range inGroup {
					if r.TrackCount == fileCount {
						exactCount = append(exactCount, r)
					}
				}
				if len(exactCount) > 0 {
					pool = exactCount
				} else {
					pool = inGroup
				}
			} else {
				pool = inGroup
			}
		}
	}

	if len(pool) == 1 {
		return &pool[0]
	}

	for _, country := range countryPriority {
		var byCountry []wireRelease
		for _, r := range pool {
			if r.Country == country {
				byCountry = append(byCountry, r)
			}
		}
		if len(byCountry) > 0 {
			pool = byCountry
			break
		}
	}

	sort.SliceStable(pool, func(i, j int) bool {
		if pool[i].Date != pool[j].Date {
			return pool[i].Date < pool[j].Date
		}
		return pool[i].ID < pool[j].ID
	})
	return &pool[0]
}
