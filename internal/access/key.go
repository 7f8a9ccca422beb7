package access

import "strings"

// Key types as reported by APIKeyInfo.
const (
	TypeAccount     = "Account"
	TypeCharacter   = "Character"
	TypeCorporation = "Corporation"
)

// Key is a registered API credential and the capabilities enabled for it.
type Key struct {
	ID         int64  `json:"key_id"`
	ActiveMask int64  `json:"active_api_mask"`
	VCode      string `json:"-"`
	IsActive   bool   `json:"is_active"`
	// Type is read from account_api_key_info and is empty until the key's
	// APIKeyInfo has been fetched once.
	Type string `json:"type,omitempty"`

	exists bool
}

// NewKey returns an unsaved key with an empty mask.
func NewKey(id int64) *Key {
	return &Key{ID: id, IsActive: true}
}

// Exists reports whether the key was read from storage or has been stored.
func (k *Key) Exists() bool {
	return k.exists
}

// Section returns the capability section matching the key type.
func (k *Key) Section() string {
	switch k.Type {
	case "":
		return ""
	case TypeCharacter:
		return "char"
	case TypeCorporation:
		return "corp"
	default:
		return strings.ToLower(k.Type)
	}
}

// AddActiveAPI enables name for the key. It reports true, without changing
// the mask, when every bit of the capability is already set. An empty section
// falls back to the key type's section; once the type is known any other
// section is rejected with ErrSectionMismatch.
func (k *Key) AddActiveAPI(r *Registry, name, section string) (alreadyActive bool, err error) {
	if strings.EqualFold(strings.TrimSpace(name), KeyInfoAPI) {
		return true, nil
	}
	section, err = k.resolveSection(name, section)
	if err != nil {
		return false, err
	}
	mask, err := r.APIsToMask(name, section)
	if err != nil {
		return false, err
	}
	if k.ActiveMask&mask == mask {
		return true, nil
	}
	k.ActiveMask |= mask
	return false, nil
}

// RemoveActiveAPI disables name for the key. It reports whether any of the
// capability's bits were set. APIKeyInfo cannot be removed and always
// reports false.
func (k *Key) RemoveActiveAPI(r *Registry, name, section string) (wasActive bool, err error) {
	if strings.EqualFold(strings.TrimSpace(name), KeyInfoAPI) {
		return false, nil
	}
	section, err = k.resolveSection(name, section)
	if err != nil {
		return false, err
	}
	mask, err := r.APIsToMask(name, section)
	if err != nil {
		return false, err
	}
	if k.ActiveMask&mask == 0 {
		return false, nil
	}
	k.ActiveMask &^= mask
	return true, nil
}

// ActiveAPIs lists the capabilities enabled for the key in its section,
// always including APIKeyInfo.
func (k *Key) ActiveAPIs(r *Registry) []string {
	apis := []string{KeyInfoAPI}
	section := k.Section()
	if section == "" {
		return apis
	}
	names, err := r.MaskToAPIs(k.ActiveMask, section)
	if err != nil {
		return apis
	}
	for _, n := range names {
		if n != KeyInfoAPI {
			apis = append(apis, n)
		}
	}
	return apis
}

// resolveSection picks the section a capability change applies to.
func (k *Key) resolveSection(name, section string) (string, error) {
	own := k.Section()
	s := strings.ToLower(strings.TrimSpace(section))
	switch {
	case s == "":
		return own, nil
	case own != "" && s != own:
		return "", &ResolutionError{Kind: ErrSectionMismatch, Names: []string{strings.TrimSpace(name)}, Section: s}
	default:
		return s, nil
	}
}
