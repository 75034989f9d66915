package market

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const testHost = "www.megamarket.example"

func TestNormalizeResolvesRelativeReferences(t *testing.T) {
	t.Parallel()

	got, err := Normalize("/product/phone-x-111/", testHost)
	require.NoError(t, err)
	require.Equal(t, "https://www.megamarket.example/product/phone-x-111/", got)

	got, err = Normalize("//www.megamarket.example/seller/acme-7/", testHost)
	require.NoError(t, err)
	require.Equal(t, "https://www.megamarket.example/seller/acme-7/", got)
}

func TestNormalizeCanonicalizes(t *testing.T) {
	t.Parallel()

	got, err := Normalize("HTTPS://WWW.Megamarket.Example:443/category/phones-1/?b=2&a=1#reviews", testHost)
	require.NoError(t, err)
	require.Equal(t, "https://www.megamarket.example/category/phones-1/?a=1&b=2", got)
}

func TestClassify(t *testing.T) {
	t.Parallel()

	cases := map[string]URLKind{
		"https://www.megamarket.example/category/phones-1/": KindCategory,
		"https://www.megamarket.example/search/?text=phone": KindSearch,
		"https://www.megamarket.example/product/x-111/":     KindProduct,
		"https://www.megamarket.example/brand/acme/":        KindBrand,
		"https://www.megamarket.example/seller/acme-7/":     KindSeller,
		"https://www.megamarket.example/help/contacts/":     KindUnknown,
		"https://www.megamarket.example/":                   KindUnknown,
		"https://other.example/product/x-111/":              KindUnknown,
	}
	for raw, want := range cases {
		require.Equal(t, want, Classify(raw, testHost), raw)
	}
}

func TestProductPK(t *testing.T) {
	t.Parallel()

	pk, ok := ProductPK("https://www.megamarket.example/product/phone-x-111/")
	require.True(t, ok)
	require.Equal(t, int64(111), pk)

	_, ok = ProductPK("https://www.megamarket.example/product/nodigits/")
	require.False(t, ok)

	_, ok = ProductPK("https://www.megamarket.example/category/phones-1/")
	require.False(t, ok)
}
