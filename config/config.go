// Package config loads burn profiles: YAML documents that declare an image,
// a target and the pipeline options. Profiles from several sources merge into
// one, later sources winning.
package config

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"
	"unicode"

	"github.com/avast/retry-go"
	"github.com/itchyny/gojq"
	"gopkg.in/yaml.v3"
)

const DefaultHeader = "#forge-config"

var ValidFileHeaders = []string{
	"#forge-config",
	"#burn-profile",
}

type Profiles []*Profile

type ProfileValues map[string]interface{}

// Profile is one parsed configuration source. Plain-array yamls are not
// allowed since they cannot merge with a map yaml.
type Profile struct {
	Sources []string
	Values  ProfileValues
}

// MergeProfileURL looks for the "profile_url" key and if it's found
// it downloads the remote profile and merges it with the current one.
// Remote profiles may chain further profile_url keys; they are fetched
// recursively until one no longer defines it.
func (c *Profile) MergeProfileURL() error {
	profileURL := c.ProfileURL()
	if profileURL == "" {
		return nil
	}

	remote, err := fetchRemoteProfile(profileURL)
	if err != nil {
		return err
	}

	if err := remote.MergeProfileURL(); err != nil {
		return err
	}

	return c.MergeProfile(remote)
}

func (c *Profile) valuesCopy() (ProfileValues, error) {
	var result ProfileValues
	data, err := yaml.Marshal(c.Values)
	if err != nil {
		return result, err
	}

	err = yaml.Unmarshal(data, &result)

	return result, err
}

// MergeProfile merges the profile passed as parameter back to the receiver.
func (c *Profile) MergeProfile(newProfile *Profile) error {
	aMap, err := c.valuesCopy()
	if err != nil {
		return err
	}
	bMap, err := newProfile.valuesCopy()
	if err != nil {
		return err
	}

	mergedValues, err := DeepMerge(aMap, bMap)
	if err != nil {
		return err
	}
	final := Profile{}
	final.Sources = append(c.Sources, newProfile.Sources...)
	final.Values = mergedValues.(ProfileValues)

	*c = final

	return nil
}

func mergeSlices(sliceA, sliceB []interface{}) ([]interface{}, error) {
	if len(sliceA) == 0 {
		return sliceB, nil
	}
	// We use the first item in the slice to determine if there are maps
	// present. Slices of maps are concatenated, anything else gets
	// deduplicated.
	firstItem := sliceA[0]
	if reflect.ValueOf(firstItem).Kind() == reflect.Map {
		return append(sliceA, sliceB...), nil
	}

	for _, vB := range sliceB {
		found := false
		for _, vA := range sliceA {
			if vA == vB {
				found = true
			}
		}
		if !found {
			sliceA = append(sliceA, vB)
		}
	}

	return sliceA, nil
}

func deepMergeMaps(a, b ProfileValues) (ProfileValues, error) {
	for k, v := range b {
		current, ok := a[k]
		if ok {
			res, err := DeepMerge(current, v)
			if err != nil {
				return a, err
			}
			a[k] = res
		} else {
			a[k] = v
		}
	}

	return a, nil
}

// DeepMerge takes two data structures and merges them together deeply. B
// always overwrites what's on A.
func DeepMerge(a, b interface{}) (interface{}, error) {
	if a == nil && b != nil {
		return b, nil
	}

	typeA := reflect.TypeOf(a)
	typeB := reflect.TypeOf(b)

	// if b is null value, return null-value of whatever a currently is
	if b == nil {
		if typeA.Kind() == reflect.Slice {
			return reflect.MakeSlice(typeA, 0, 0).Interface(), nil
		} else if typeA.Kind() == reflect.Map {
			return reflect.MakeMap(typeA).Interface(), nil
		}
		return reflect.Zero(typeA).Interface(), nil
	}

	// We don't support merging different data structures
	if typeA.Kind() != typeB.Kind() {
		return ProfileValues{}, fmt.Errorf("cannot merge %s with %s", typeA.String(), typeB.String())
	}

	if typeA.Kind() == reflect.Slice {
		return mergeSlices(a.([]interface{}), b.([]interface{}))
	}

	if typeA.Kind() == reflect.Map {
		return deepMergeMaps(a.(ProfileValues), b.(ProfileValues))
	}

	// for any other type, b takes precedence
	return b, nil
}

// String returns a Yaml representation of the Profile, headed and annotated
// with its sources.
func (c *Profile) String() (string, error) {
	sourcesComment := ""
	profile := *c
	if len(profile.Sources) > 0 {
		sourcesComment = "# Sources:\n"
		for _, s := range profile.Sources {
			sourcesComment += fmt.Sprintf("# - %s\n", s)
		}
		sourcesComment += "\n"
	}

	data, err := yaml.Marshal(profile.Values)
	if err != nil {
		return "", fmt.Errorf("marshalling the profile to a string: %s", err)
	}

	return fmt.Sprintf("%s\n\n%s%s", DefaultHeader, sourcesComment, string(data)), nil
}

func (cs Profiles) Merge() (*Profile, error) {
	result := &Profile{}

	for _, c := range cs {
		if err := c.MergeProfileURL(); err != nil {
			return result, err
		}

		if err := result.MergeProfile(c); err != nil {
			return result, err
		}
	}

	return result, nil
}

// Options steer a Scan.
type Options struct {
	ScanDir    []string
	Readers    []io.Reader
	Overwrites string
	NoLogs     bool
}

// Scan collects profiles from the configured directories and readers and
// merges them into one. Overwrites, when set, are applied last.
func Scan(o *Options) (*Profile, error) {
	profiles := Profiles{}

	profiles = append(profiles, parseFiles(o.ScanDir, o.NoLogs)...)
	profiles = append(profiles, parseReaders(o.Readers, o.NoLogs)...)

	merged, err := profiles.Merge()
	if err != nil {
		return merged, err
	}

	if o.Overwrites != "" {
		yaml.Unmarshal([]byte(o.Overwrites), &merged.Values) //nolint:errcheck
	}

	return merged, nil
}

func allFiles(dir []string) []string {
	files := []string{}
	for _, d := range dir {
		if f, err := listFiles(d); err == nil {
			files = append(files, f...)
		}
	}
	return files
}

// parseFiles returns the profiles parsed from yaml files with a valid header.
func parseFiles(dir []string, nologs bool) Profiles {
	result := Profiles{}
	for _, f := range allFiles(dir) {
		if fileSizeMB(f) > 1.0 {
			if !nologs {
				fmt.Printf("warning: skipping %s. too big (>1MB)\n", f)
			}
			continue
		}
		if filepath.Ext(f) != ".yml" && filepath.Ext(f) != ".yaml" {
			if !nologs {
				fmt.Printf("warning: skipping %s (extension).\n", f)
			}
			continue
		}
		b, err := os.ReadFile(f)
		if err != nil {
			if !nologs {
				fmt.Printf("warning: skipping %s. %s\n", f, err.Error())
			}
			continue
		}

		if !HasValidHeader(string(b)) {
			if !nologs {
				fmt.Printf("warning: skipping %s because it has no valid header\n", f)
			}
			continue
		}

		var newProfile Profile
		err = yaml.Unmarshal(b, &newProfile.Values)
		if err != nil && !nologs {
			fmt.Printf("warning: failed to parse profile:\n%s\n", err.Error())
		}
		newProfile.Sources = []string{f}

		result = append(result, &newProfile)
	}

	return result
}

// parseReaders returns profiles parsed from Reader interfaces. Readers were
// passed explicitly, so no header checks here.
func parseReaders(readers []io.Reader, nologs bool) Profiles {
	result := Profiles{}
	for _, r := range readers {
		var newProfile Profile
		read, err := io.ReadAll(r)
		if err != nil {
			if !nologs {
				fmt.Printf("Error reading profile: %s", err.Error())
			}
			continue
		}
		err = yaml.Unmarshal(read, &newProfile.Values)
		if err != nil {
			err = json.Unmarshal(read, &newProfile.Values)
			if err != nil {
				if !nologs {
					fmt.Printf("Error unmarshalling profile(error: %s): %s", err.Error(), string(read))
				}
				continue
			}
		}
		newProfile.Sources = []string{"reader"}
		result = append(result, &newProfile)
	}

	return result
}

func fileSizeMB(f string) float64 {
	file, err := os.Open(f)
	if err != nil {
		return 0
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return 0
	}

	kilobytes := stat.Size() / 1024
	return float64(kilobytes / 1024)
}

func listFiles(dir string) ([]string, error) {
	content := []string{}

	err := filepath.Walk(dir,
		func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return nil
			}
			if !info.IsDir() {
				content = append(content, path)
			}

			return nil
		})

	return content, err
}

// ProfileURL returns the value of profile_url if set or empty string
// otherwise.
func (c Profile) ProfileURL() string {
	if val, hasKey := c.Values["profile_url"]; hasKey {
		if s, isString := val.(string); isString {
			return s
		}
	}

	return ""
}

func fetchRemoteProfile(url string) (*Profile, error) {
	var body []byte
	result := &Profile{}

	err := retry.Do(
		func() error {
			resp, err := http.Get(url)
			if err != nil {
				return err
			}
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("unexpected status: %d", resp.StatusCode)
			}
			defer resp.Body.Close()

			body, err = io.ReadAll(resp.Body)
			if err != nil {
				return err
			}

			return nil
		}, retry.Delay(time.Second), retry.Attempts(3),
	)
	if err != nil {
		return result, fmt.Errorf("fetching %s: %w", url, err)
	}

	if !HasValidHeader(string(body)) {
		return result, fmt.Errorf("remote profile %s has no valid header", url)
	}

	if err := yaml.Unmarshal(body, &result.Values); err != nil {
		return result, fmt.Errorf("could not unmarshal remote profile to an object: %w", err)
	}

	result.Sources = []string{url}

	return result, nil
}

func HasValidHeader(data string) bool {
	// Look in the first 10 lines, there may be comments above the header
	headers := strings.SplitN(data, "\n", 10)

	for _, line := range headers {
		header := strings.TrimRightFunc(line, unicode.IsSpace)
		if strings.HasPrefix(header, "#") {
			for _, valid := range ValidFileHeaders {
				if header == valid {
					return true
				}
			}
		}
	}

	return false
}

// Query runs a jq-style selector over the profile and returns the matching
// values as yaml.
func (c Profile) Query(s string) (res string, err error) {
	s = fmt.Sprintf(".%s", s)

	var dat map[string]interface{}
	var dat1 map[string]interface{}

	yamlStr, err := c.String()
	if err != nil {
		return res, err
	}
	// Re-unmarshal to drop the header line which cannot be parsed
	err = yaml.Unmarshal([]byte(yamlStr), &dat1)
	if err != nil {
		return res, err
	}
	// Transform to json so gojq parses it correctly
	b, err := json.Marshal(dat1)
	if err != nil {
		return res, err
	}
	if err := json.Unmarshal(b, &dat); err != nil {
		return res, err
	}
	// The null filter keeps empty values from rendering as the literal "null"
	query, err := gojq.Parse(s + " | if ( . | type) == \"null\" then empty else . end")
	if err != nil {
		return res, err
	}
	iter := query.Run(dat)
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if err, ok := v.(error); ok {
			return res, fmt.Errorf("failed parsing, error: %w", err)
		}

		dat, err := yaml.Marshal(v)
		if err != nil {
			break
		}
		res += string(dat)
	}
	return
}
