package transport_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bamsammich/courier/internal/transport"
)

func TestParseLocation(t *testing.T) {
	t.Parallel()

	sftp := func(user, host, p string) transport.Location {
		return transport.Location{Scheme: transport.SchemeSFTP, User: user, Host: host, Path: p}
	}
	local := func(p string) transport.Location { return transport.Location{Path: p} }
	s3 := func(bucket, p string) transport.Location {
		return transport.Location{Scheme: transport.SchemeS3, Host: bucket, Path: p}
	}

	tests := map[string]transport.Location{
		// Local forms, including colons that cannot start a host.
		"/srv/media":              local("/srv/media"),
		"/srv/media/":             local("/srv/media/"),
		"media/2024":              local("media/2024"),
		"./media":                 local("./media"),
		"../media":                local("../media"),
		"clip.mov":                local("clip.mov"),
		"/srv/a:b:c.txt":          local("/srv/a:b:c.txt"),
		"media/cam:01.mov":        local("media/cam:01.mov"),
		"./nas:media":             local("./nas:media"),
		":media":                  local(":media"),
		"ops@:media":              local("ops@:media"),
		"nas:/srv/media":          sftp("", "nas", "/srv/media"),
		"nas:media":               sftp("", "nas", "media"),
		"nas:":                    sftp("", "nas", ""),
		"ops@nas:/srv/media":      sftp("ops", "nas", "/srv/media"),
		"ops@nas.lan:incoming":    sftp("ops", "nas.lan", "incoming"),
		"ops@nas:":                sftp("ops", "nas", ""),
		"s3://archive/2024/a.mov": s3("archive", "/2024/a.mov"),
		"s3://archive":            s3("archive", "/"),
		"s3://archive//x/../y":    s3("archive", "/y"),
	}

	for in, want := range tests {
		t.Run(in, func(t *testing.T) {
			t.Parallel()
			got := transport.ParseLocation(in)
			assert.Equal(t, want, got)
			assert.Equal(t, want.Host != "", got.IsRemote())
			assert.Equal(t, want.Scheme == transport.SchemeS3, got.IsS3())
		})
	}
}

func TestLocation_String(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"/srv/media", "ops@nas:/srv/media", "nas:incoming", "s3://archive/2024/a.mov"} {
		assert.Equal(t, in, transport.ParseLocation(in).String())
	}
}

func TestLocation_VolumeID(t *testing.T) {
	t.Parallel()

	ids := map[string]string{
		"/srv/media":        "local",
		"media":             "local",
		"nas:/srv":          "sftp://nas",
		"ops@nas:/srv":      "sftp://ops@nas",
		"s3://archive/2024": "s3://archive",
	}
	for in, want := range ids {
		assert.Equal(t, want, transport.ParseLocation(in).VolumeID(), in)
	}

	// Paths on one host share a volume; users do not.
	assert.Equal(t,
		transport.ParseLocation("nas:/a").VolumeID(),
		transport.ParseLocation("nas:/b").VolumeID())
	assert.NotEqual(t,
		transport.ParseLocation("ops@nas:/a").VolumeID(),
		transport.ParseLocation("root@nas:/a").VolumeID())
}
