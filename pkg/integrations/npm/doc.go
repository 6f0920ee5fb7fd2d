// Package npm provides an HTTP client for the npm registry API.
//
// # Usage
//
//	client := npm.NewClient(cache.NewNullCache(), npm.DefaultRegistry, time.Hour)
//
//	pkg, err := client.FetchPackage(ctx, "lodash", false)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	fmt.Println(pkg.Name, pkg.Latest(), len(pkg.Versions))
//
// # PackageInfo
//
// [Client.FetchPackage] returns a [PackageInfo] containing the package's
// dist-tags, every published version (sorted lexically, not by semver) and
// the deprecation message of deprecated versions.
//
// # Registries
//
// Any registry speaking the npm protocol works (Verdaccio, GitHub Packages,
// Artifactory). Scoped names are requested as "@scope%2Fname". The cache
// namespace includes the registry URL so entries from different registries
// never mix.
package npm
