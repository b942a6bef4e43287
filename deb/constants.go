package deb

// ControlField represents a standard field in a Debian control stanza.
type ControlField string

const (
	FieldPackage       ControlField = "Package"
	FieldVersion       ControlField = "Version"
	FieldArchitecture  ControlField = "Architecture"
	FieldMaintainer    ControlField = "Maintainer"
	FieldDescription   ControlField = "Description"
	FieldSection       ControlField = "Section"
	FieldHomepage      ControlField = "Homepage"
	FieldDepends       ControlField = "Depends"
	FieldSource        ControlField = "Source"
	FieldInstalledSize ControlField = "Installed-Size"
	FieldFilename      ControlField = "Filename"
	FieldSize          ControlField = "Size"
	FieldSHA256        ControlField = "SHA256"
)

// ReleaseField represents a standard field in a Debian Release file.
type ReleaseField string

const (
	RelOrigin        ReleaseField = "Origin"
	RelLabel         ReleaseField = "Label"
	RelSuite         ReleaseField = "Suite"
	RelVersion       ReleaseField = "Version"
	RelCodename      ReleaseField = "Codename"
	RelDate          ReleaseField = "Date"
	RelValidUntil    ReleaseField = "Valid-Until"
	RelArchitectures ReleaseField = "Architectures"
	RelComponents    ReleaseField = "Components"
	RelDescription   ReleaseField = "Description"
	RelSHA256        ReleaseField = "SHA256"
)

// PackageFile names a member of the .deb archive (ar format).
type PackageFile string

const (
	PkgDebianBinary PackageFile = "debian-binary"
	// PkgControlTar prefixes the control member, whatever its compression:
	// control.tar, control.tar.gz, control.tar.zst or control.tar.xz.
	PkgControlTar PackageFile = "control.tar"
)
