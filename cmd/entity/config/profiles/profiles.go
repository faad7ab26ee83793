package profiles

import (
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hectane/go-acl"
	"github.com/openbraininstitute/entitykit/pkg/utils/open"
	yaml "gopkg.in/yaml.v3"
)

var ErrProfileStoreNotFound = errors.New("profile store is not found")
var ErrCannotCreateConfig = errors.New("cannot create profile store")
var ErrCannotUpdateConfig = errors.New("cannot update profile store")
var ErrProfileInvalid = errors.New("profile is invalid")
var ErrProfileNotFound = errors.New("profile is not found")

// DefaultContext is the JSON-LD context of resources sent to the store.
const DefaultContext = "https://bbp.neuroshapes.org"

// DefaultBucket is the bucket used when neither a flag nor the profile names one.
const DefaultBucket = "bbp/atlas"

// ProfileStore is a map from profile (environment) name to Profile.
type ProfileStore map[string]*Profile

type Cert struct {
	// base64 encoded CA certificate
	CA string `yaml:"ca,omitempty"`
}

// Profile is a connection setting for a Nexus deployment.
type Profile struct {
	// endpoint of Nexus, like "https://bbp.epfl.ch/nexus/v1"
	Endpoint string `yaml:"endpoint"`

	// default bucket, "organization/project"
	Bucket string `yaml:"bucket,omitempty"`

	// cert is a certificate for the endpoint.
	Cert Cert `yaml:"cert,omitempty"`

	// JSON-LD context of submitted resources. DefaultContext when empty.
	Context string `yaml:"context,omitempty"`

	// entity type name -> schema id, used for validated registration.
	Schemas map[string]string `yaml:"schemas,omitempty"`
}

// Builtin returns profiles known without a profile store.
func Builtin() ProfileStore {
	return ProfileStore{
		"prod": {
			Endpoint: "https://bbp.epfl.ch/nexus/v1",
			Bucket:   DefaultBucket,
		},
		"staging": {
			Endpoint: "https://staging.nise.bbp.epfl.ch/nexus/v1",
			Bucket:   DefaultBucket,
		},
	}
}

func verifyUrl(s string) bool {
	u, err := url.Parse(s)
	return err == nil && u.IsAbs()
}

func verifyPEM(b64cert string) bool {
	bin, err := base64.StdEncoding.DecodeString(b64cert)
	if err != nil {
		return false
	}
	blk, _ := pem.Decode(bin)
	return blk != nil
}

// VerifyBucket checks a bucket is "organization/project".
func VerifyBucket(bucket string) error {
	org, proj, ok := strings.Cut(bucket, "/")
	if !ok || org == "" || proj == "" || strings.Contains(proj, "/") {
		return fmt.Errorf("%w: bucket should be 'organization/project': '%s'", ErrProfileInvalid, bucket)
	}
	return nil
}

// Verify Profile
//
// # Return
//
// nil if it is valid. Otherwise, ErrProfileInvalid error.
func (p *Profile) Verify() error {
	if !verifyUrl(p.Endpoint) {
		return fmt.Errorf("%w: endpoint is not URL: %s", ErrProfileInvalid, p.Endpoint)
	}
	if p.Bucket != "" {
		if err := VerifyBucket(p.Bucket); err != nil {
			return err
		}
	}
	if p.Cert.CA != "" && !verifyPEM(p.Cert.CA) {
		return fmt.Errorf("%w: cert.ca is not PEM", ErrProfileInvalid)
	}
	if p.Context != "" && !verifyUrl(p.Context) {
		return fmt.Errorf("%w: context is not URL: %s", ErrProfileInvalid, p.Context)
	}
	return nil
}

// JSONLDContext returns the context, or DefaultContext.
func (p *Profile) JSONLDContext() string {
	if p.Context == "" {
		return DefaultContext
	}
	return p.Context
}

// LoadProfileStore loads profile store from file.
func LoadProfileStore(filepath string) (ProfileStore, error) {
	buf, err := os.ReadFile(filepath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w at %s", ErrProfileStoreNotFound, filepath)
		}
		return nil, err
	}
	return Unmarshall(buf)
}

// Unmarshall profile store from yaml in byte array.
func Unmarshall(buf []byte) (ProfileStore, error) {
	ret := map[string]*Profile{}
	err := yaml.Unmarshal(buf, &ret)
	if err != nil {
		return nil, err
	}
	return ret, nil
}

// Names returns profile names, sorted.
func (ps ProfileStore) Names() []string {
	ret := make([]string, 0, len(ps))
	for k := range ps {
		ret = append(ret, k)
	}
	sort.Strings(ret)
	return ret
}

// Resolve finds a profile by name.
//
// Profiles in the store at path come first, then built-in profiles.
// A store file which does not exist is not an error.
func Resolve(path string, name string) (*Profile, error) {
	ps, err := LoadProfileStore(path)
	if err != nil && !errors.Is(err, ErrProfileStoreNotFound) {
		return nil, err
	}
	if p, ok := ps[name]; ok {
		return p, p.Verify()
	}
	builtin := Builtin()
	if p, ok := builtin[name]; ok {
		return p, nil
	}

	known := map[string]struct{}{}
	for _, n := range append(ps.Names(), builtin.Names()...) {
		known[n] = struct{}{}
	}
	names := make([]string, 0, len(known))
	for n := range known {
		names = append(names, n)
	}
	sort.Strings(names)
	return nil, fmt.Errorf("%w: '%s' (known: %s)", ErrProfileNotFound, name, strings.Join(names, ", "))
}

// Save profile store to file.
//
// The file is readable only by the current user.
// The previous content is kept while writing, and restored on failure.
func (ps *ProfileStore) Save(path string) error {
	saving := false

	if err := os.MkdirAll(filepath.Dir(path), os.FileMode(0700)); err != nil {
		return err
	}

	bkpath := path + ".backup"
	bk, err := open.NewSafeFile(bkpath)
	if err != nil {
		return err
	}
	defer func() {
		if !saving {
			os.Remove(bkpath)
		}
	}()
	defer bk.Close()

	f, err := os.OpenFile(path, os.O_RDWR, os.FileMode(0600))
	if err == nil {
		// an existing file may have looser permissions.
		if err := acl.Chmod(path, os.FileMode(0600)); err != nil {
			f.Close()
			return err
		}
	} else {
		if os.IsPermission(err) {
			return fmt.Errorf(
				"%w, because no permission to write file at %s",
				ErrCannotUpdateConfig, path,
			)
		} else if os.IsNotExist(err) {
			f_, err_ := open.NewSafeFile(path)
			if err_ != nil {
				return fmt.Errorf(
					"%w: cannot create a file at %s",
					ErrCannotCreateConfig, path,
				)
			}
			f = f_
		} else {
			return err
		}
	}
	defer f.Close()

	if _, err := io.Copy(bk, f); err != nil {
		return err
	}

	saving = true
	restore := func() {
		if _, err := bk.Seek(0, 0); err != nil {
			return
		}
		f.Seek(0, 0)
		f.Truncate(0)
		io.Copy(f, bk)
	}

	if _, err := f.Seek(0, 0); err != nil {
		return err
	}
	if err := f.Truncate(0); err != nil {
		restore()
		return err
	}
	buf, err := yaml.Marshal(ps)
	if err != nil {
		restore()
		return err
	}
	if _, err = f.Write(buf); err != nil {
		restore()
		return err
	}
	saving = false
	return nil
}
